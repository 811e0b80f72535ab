package index

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"time"

	"gorm.io/gorm"
)

// Uint64 stores an unsigned 64-bit amount as a zero padded 20 digit decimal
// so the full range survives database/sql and text ordering stays numeric.
type Uint64 uint64

const uint64Digits = 20

// Value implements driver.Valuer.
func (u Uint64) Value() (driver.Value, error) {
	return fmt.Sprintf("%0*d", uint64Digits, uint64(u)), nil
}

// Scan implements sql.Scanner.
func (u *Uint64) Scan(src interface{}) error {
	var raw string
	switch v := src.(type) {
	case nil:
		*u = 0
		return nil
	case string:
		raw = v
	case []byte:
		raw = string(v)
	case int64:
		if v < 0 {
			return fmt.Errorf("index: negative amount %d", v)
		}
		*u = Uint64(v)
		return nil
	default:
		return fmt.Errorf("index: cannot scan %T into Uint64", src)
	}
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("index: amount %q: %w", raw, err)
	}
	*u = Uint64(value)
	return nil
}

// Article mirrors a listing as of the last applied event.
type Article struct {
	ID           string `gorm:"primaryKey;size:66"`
	Creator      string `gorm:"size:64;index"`
	Sequence     Uint64 `gorm:"type:varchar(20)"`
	URI          string `gorm:"size:256"`
	PayCurrency  string `gorm:"size:64"`
	Price        Uint64 `gorm:"type:varchar(20)"`
	RoyaltyBps   uint16
	Transferable bool
	Sales        Uint64 `gorm:"type:varchar(20)"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Purchase is one settled purchase with its fee breakdown.
type Purchase struct {
	EventID       string    `gorm:"primaryKey;size:36"`
	Article       string    `gorm:"size:66;uniqueIndex:idx_purchase_article_buyer"`
	Buyer         string    `gorm:"size:64;uniqueIndex:idx_purchase_article_buyer;index"`
	Price         Uint64    `gorm:"type:varchar(20)"`
	ProtocolFee   Uint64    `gorm:"type:varchar(20)"`
	ReferrerFee   Uint64    `gorm:"type:varchar(20)"`
	CreatorAmount Uint64    `gorm:"type:varchar(20)"`
	Referrer      string    `gorm:"size:64"`
	PurchasedAt   time.Time `gorm:"index"`
}

// Credential tracks the current holder of an access credential.
type Credential struct {
	ID           string `gorm:"primaryKey;size:66"`
	Article      string `gorm:"size:66;index"`
	Owner        string `gorm:"size:64;index"`
	Transferable bool
	UpdatedAt    time.Time
}

// FeeChange is the audit trail of fee schedule writes.
type FeeChange struct {
	EventID     string `gorm:"primaryKey;size:36"`
	ProtocolBps uint16
	ReferrerBps uint16
	Treasury    string `gorm:"size:64"`
	CreatedAt   time.Time
}

// AutoMigrate performs all schema migrations for the read model.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Article{},
		&Purchase{},
		&Credential{},
		&FeeChange{},
	)
}
