package service

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// Invoice numbers are a date prefix plus a 4-digit random suffix. The
// suffix carries no uniqueness guarantee by construction; the unique
// index on invoices.number plus the insert retry in checkout turns a
// collision into a retry instead of a duplicate number.
func invoiceNumber(now time.Time) string {
	n, err := rand.Int(rand.Reader, big.NewInt(10000))
	suffix := int64(0)
	if err == nil {
		suffix = n.Int64()
	}
	return fmt.Sprintf("INV-%s-%04d", now.Format("20060102"), suffix)
}

const numberInsertAttempts = 5
