// Package audit persists a trail of operationally significant events —
// coil writes, driver toggles, TLS control commands — to a local sqlite
// database, independent of any client being connected to read it.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Event is one audit trail row.
type Event struct {
	ID        uint `gorm:"primarykey"`
	CreatedAt time.Time
	Source    string // "modbus", "tls", "acquisition", "simulation", ...
	Action    string
	Detail    string
	Peer      string
}

// Open opens (creating if absent) the sqlite audit database at path and
// migrates the Event schema.
func Open(path string, log *logrus.Logger) (*gorm.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("audit: create dir: %w", err)
	}

	gormCfg := &gorm.Config{}
	if log != nil {
		gormCfg.Logger = newLogrusLogger(log)
	}

	db, err := gorm.Open(sqlite.Open(path), gormCfg)
	if err != nil {
		return nil, fmt.Errorf("audit: open sqlite: %w", err)
	}
	if err := db.AutoMigrate(&Event{}); err != nil {
		return nil, fmt.Errorf("audit: migrate: %w", err)
	}

	sqlDB, err := db.DB()
	if err == nil {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(2)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}
	return db, nil
}

// Write records one audit event. Failures are logged, never propagated —
// a missing audit row must never interrupt the operation it describes.
func Write(db *gorm.DB, log logrus.FieldLogger, source, action string, detail any, peer string) {
	if db == nil {
		return
	}
	var detailStr string
	if detail != nil {
		if b, err := json.Marshal(detail); err == nil {
			detailStr = string(b)
		}
	}
	ev := Event{
		CreatedAt: time.Now(),
		Source:    source,
		Action:    action,
		Detail:    detailStr,
		Peer:      peer,
	}
	if err := db.Create(&ev).Error; err != nil && log != nil {
		log.WithError(err).Warn("audit: failed to write event")
	}
}

// Recent returns the n most recent audit events, newest first.
func Recent(db *gorm.DB, n int) ([]Event, error) {
	var events []Event
	err := db.Order("id desc").Limit(n).Find(&events).Error
	return events, err
}
