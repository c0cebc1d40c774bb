package service

import (
	"crypto/rand"
	"errors"
	"math/big"
)

// Алфавит короткого идентификатора
const shortIDAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

const DefaultShortIDLength = 6

var errInvalidLength = errors.New("short id length must be positive")

// GenerateShortID возвращает случайную строку заданной длины из алфавита [a-zA-Z0-9].
// Уникальность не гарантируется, её обеспечивает ограничение в БД.
func GenerateShortID(length int) (string, error) {
	if length <= 0 {
		return "", errInvalidLength
	}

	n := big.NewInt(int64(len(shortIDAlphabet)))
	result := make([]byte, length)
	for i := range result {
		num, err := rand.Int(rand.Reader, n)
		if err != nil {
			return "", err
		}
		result[i] = shortIDAlphabet[num.Int64()]
	}
	return string(result), nil
}
