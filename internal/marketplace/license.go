package marketplace

import (
	"crypto/rand"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"vantage/internal/models"
)

const (
	licensePrefix     = "VNT"
	licenseSuffixLen  = 8
	licenseAlphabet   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	licenseAlphabetSz = byte(len(licenseAlphabet))
)

// newLicenseKey returns VNT-<unix ms>-<8 uppercase alphanumerics>
func newLicenseKey(now time.Time) (string, error) {
	buf := make([]byte, licenseSuffixLen)
	suffix := make([]byte, 0, licenseSuffixLen)

	for len(suffix) < licenseSuffixLen {
		if _, err := rand.Read(buf); err != nil {
			return "", errors.Wrap(err, "failed to generate license key")
		}
		for _, b := range buf {
			// reject the tail of the byte range so every symbol is equally likely
			if b >= 252 {
				continue
			}
			suffix = append(suffix, licenseAlphabet[b%licenseAlphabetSz])
			if len(suffix) == licenseSuffixLen {
				break
			}
		}
	}

	return licensePrefix + "-" + strconv.FormatInt(now.UnixMilli(), 10) + "-" + string(suffix), nil
}

// licenseExpiry returns when a license of type lt bought at purchasedAt lapses.
// License types without a configured validity never expire.
func licenseExpiry(validity map[string]time.Duration, lt models.LicenseType, purchasedAt time.Time) *time.Time {
	d, ok := validity[string(lt)]
	if !ok || d <= 0 {
		return nil
	}
	expires := purchasedAt.Add(d)
	return &expires
}
