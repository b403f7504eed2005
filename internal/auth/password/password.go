package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/crypto/argon2"
)

const (
	argonTime    uint32 = 1
	argonMemory  uint32 = 64 * 1024
	argonThreads uint8  = 4
	argonKeyLen  uint32 = 32
	argonSaltLen        = 16

	MinLength = 8

	temporaryBytes = 12
)

var ErrTooShort = errors.New("password_too_short")

// Validate enforces the minimum password policy.
func Validate(password string) error {
	if utf8.RuneCountInString(strings.TrimSpace(password)) < MinLength {
		return ErrTooShort
	}
	return nil
}

// Temporary returns a random password handed out once to a new account.
func Temporary() (string, error) {
	buf := make([]byte, temporaryBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Hash returns an encoded Argon2id hash.
func Hash(password string) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	hash := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	saltB64 := base64.RawStdEncoding.EncodeToString(salt)
	hashB64 := base64.RawStdEncoding.EncodeToString(hash)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s", argon2.Version, argonMemory, argonTime, argonThreads, saltB64, hashB64), nil
}

// Verify checks whether a password matches the encoded Argon2id hash.
func Verify(password, encoded string) bool {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" || parts[2] != fmt.Sprintf("v=%d", argon2.Version) {
		return false
	}

	memory, timeCost, threads, ok := parseParams(parts[3])
	if !ok {
		return false
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}
	hash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(hash) == 0 {
		return false
	}

	check := argon2.IDKey([]byte(password), salt, timeCost, memory, threads, uint32(len(hash)))
	return subtle.ConstantTimeCompare(hash, check) == 1
}

func parseParams(raw string) (memory, timeCost uint32, threads uint8, ok bool) {
	params := strings.Split(raw, ",")
	if len(params) != 3 {
		return 0, 0, 0, false
	}
	m, okM := strings.CutPrefix(params[0], "m=")
	t, okT := strings.CutPrefix(params[1], "t=")
	p, okP := strings.CutPrefix(params[2], "p=")
	if !okM || !okT || !okP {
		return 0, 0, 0, false
	}

	m64, err := strconv.ParseUint(m, 10, 32)
	if err != nil {
		return 0, 0, 0, false
	}
	t64, err := strconv.ParseUint(t, 10, 32)
	if err != nil {
		return 0, 0, 0, false
	}
	p64, err := strconv.ParseUint(p, 10, 8)
	if err != nil || p64 == 0 {
		return 0, 0, 0, false
	}
	return uint32(m64), uint32(t64), uint8(p64), true
}
