package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AccountNumberPrefix is the prefix every Bravemoney account number carries.
const AccountNumberPrefix = "BM"

var accountNumberPattern = regexp.MustCompile(`^BM[A-Z0-9]{6,}$`)

// GenerateUUIDWithSuffix generates a UUID with a given module name as a prefix.
// This is useful for creating unique identifiers with context-specific prefixes.
func GenerateUUIDWithSuffix(module string) string {
	id := uuid.New()
	return fmt.Sprintf("%s_%s", module, id.String())
}

// CanonicalAccountNumber returns the canonical form of an account number:
// whitespace trimmed and upper-cased. It does not validate the result.
func CanonicalAccountNumber(number string) string {
	return strings.ToUpper(strings.TrimSpace(number))
}

// IsValidAccountNumber reports whether number (after canonicalization) matches
// the BM[A-Z0-9]{6,} account number format.
func IsValidAccountNumber(number string) bool {
	return accountNumberPattern.MatchString(CanonicalAccountNumber(number))
}

// GenerateAccountCandidate produces a candidate account number from the last
// six digits of the current unix-millisecond clock plus four random digits.
// Candidates have a low collision probability but are not unique by
// construction; uniqueness is enforced by the allocator's reservation step.
func GenerateAccountCandidate() string {
	millis := time.Now().UnixMilli()
	timePart := fmt.Sprintf("%06d", millis%1000000)
	randPart := 1000 + rand.Intn(9000)
	return fmt.Sprintf("%s%s%d", AccountNumberPrefix, timePart, randPart)
}

// DeterministicAccountNumber derives a stable account number from an identity
// id. It is the allocator's last-resort candidate when random generation keeps
// colliding against the local reservation map.
func DeterministicAccountNumber(identityID string) string {
	sum := sha256.Sum256([]byte(identityID))
	return AccountNumberPrefix + strings.ToUpper(hex.EncodeToString(sum[:5]))
}
