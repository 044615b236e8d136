package utils

import (
	"fmt"

	"github.com/ttacon/libphonenumber"
)

// NormalizePhone parses a phone number, reading national numbers in the
// given region, and returns it in E.164 form.
func NormalizePhone(phoneNumber, region string) (string, error) {
	p, err := libphonenumber.Parse(phoneNumber, region)
	if err != nil {
		return "", err
	}

	if !libphonenumber.IsValidNumber(p) {
		return "", fmt.Errorf("phone number is not valid")
	}

	return libphonenumber.Format(p, libphonenumber.E164), nil
}
