package store

import (
	"fmt"
	"regexp"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func OpenPostgres(user, password, dbName, host, port, sslMode string) (*gorm.DB, error) {
	if sslMode == "" {
		sslMode = "disable"
	}
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC", host, user, password, dbName, port, sslMode)
	return gorm.Open(postgres.Open(dsn), &gorm.Config{})
}

func New(db *gorm.DB) (*Repo, error) {
	if err := db.AutoMigrate(&Device{}, &Reading{}, &DeadLetter{}, &User{}); err != nil {
		return nil, err
	}
	return &Repo{db: db}, nil
}

var macPattern = regexp.MustCompile(`^[0-9A-F]{12}$`)

// NormalizeMAC strips whitespace and separators, uppercases, and validates
// the 12-hex-character form used as the device's natural key.
func NormalizeMAC(raw string) (string, error) {
	mac := strings.ToUpper(strings.TrimSpace(raw))
	mac = strings.NewReplacer(":", "", "-", "", ".", "", " ", "").Replace(mac)
	if !macPattern.MatchString(mac) {
		return "", fmt.Errorf("invalid mac %q: want 12 hex characters", raw)
	}
	return mac, nil
}
