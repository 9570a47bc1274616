package game

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"golang.org/x/text/unicode/norm"
)

const fingerprintDomain = "chessarchive/game/v1"

// IdentityFields are the fields that define a game's identity. Nothing else
// about a record (source, file, parse order) affects its fingerprint.
type IdentityFields struct {
	White  string
	Black  string
	Result string
	Date   string
	Round  string
}

// Identity extracts and validates the identity fields of r.
func Identity(r *Record) (IdentityFields, error) {
	if err := requireField("White", r.White, true); err != nil {
		return IdentityFields{}, err
	}
	if err := requireField("Black", r.Black, true); err != nil {
		return IdentityFields{}, err
	}
	if err := requireField("Result", r.Result, true); err != nil {
		return IdentityFields{}, err
	}
	if err := requireField("Date", r.Date, false); err != nil {
		return IdentityFields{}, err
	}
	return IdentityFields{
		White:  r.White,
		Black:  r.Black,
		Result: r.Result,
		Date:   r.Date,
		Round:  r.Round,
	}, nil
}

// Fingerprint returns the 64-character hex SHA-256 of the identity fields.
func Fingerprint(id IdentityFields) string {
	h := sha256.New()
	h.Write([]byte(fingerprintDomain))
	h.Write([]byte{0x00})
	for i, f := range []string{id.White, id.Black, id.Result, id.Date, id.Round} {
		if i > 0 {
			h.Write([]byte{0x1f})
		}
		h.Write([]byte(canonical(f)))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// FingerprintRecord validates r and returns its fingerprint.
func FingerprintRecord(r *Record) (string, error) {
	id, err := Identity(r)
	if err != nil {
		return "", err
	}
	return Fingerprint(id), nil
}

// IsFingerprint reports whether s is a well-formed fingerprint.
func IsFingerprint(s string) bool {
	if len(s) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil && strings.ToLower(s) == s
}

// canonical is NFC with internal whitespace runs collapsed to one space.
func canonical(s string) string {
	return strings.Join(strings.Fields(norm.NFC.String(s)), " ")
}
