package util

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// GenRandomString returns prefix followed by n random bytes, URL-safe base64
// encoded.
func GenRandomString(prefix []byte, n int) (string, error) {
	b, err := GenRandomBytes(n)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(append(append([]byte{}, prefix...), b...)), nil
}

// GenRandomBytes returns n bytes from the system's secure generator.
func GenRandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

func JsonWrite(w http.ResponseWriter, v interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(v)
}

func CryptPwd(password string) (string, error) {
	x, err := bcrypt.GenerateFromPassword([]byte(password), 12)
	if err != nil {
		return "", err
	}
	return string(x), nil
}

// CheckPwd compares a plaintext secret with a bcrypt hash.
func CheckPwd(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

func GenUUID() string {
	return uuid.NewString()
}

// TimeFormat is the ISO-8601 form of every timestamp written to the store.
const TimeFormat = "2006-01-02T15:04:05.000Z07:00"

func Timestamp(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}
