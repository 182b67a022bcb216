package eventbus

import "testing"

func TestNewAndPublishDoesNotPanic(t *testing.T) {
	bus, err := New("127.0.0.1:0", nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer bus.Close()

	bus.Publish("daqbridge/alarm", "modbus", "coil_write", map[string]any{"addr": 5})
}
