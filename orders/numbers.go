package orders

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
)

const (
	orderNumberPrefix = "ORD"
	orderNumberBytes  = 5
	maxNumberAttempts = 5
)

func newOrderNumber() (string, error) {
	byt := make([]byte, orderNumberBytes)
	if _, err := rand.Read(byt); err != nil {
		return "", err
	}
	return orderNumberPrefix + "-" + strings.ToUpper(hex.EncodeToString(byt)), nil
}
