package utils

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/Ananth-NQI/linkup-backend/internal/models"
)

// HashAddress returns the lookup hash for a phone address. Contact invitations
// are keyed by this hash so raw numbers of non-users are never stored.
func HashAddress(phone string) string {
	sum := sha256.Sum256([]byte(models.NormalizePhone(phone)))
	return hex.EncodeToString(sum[:])
}
