package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateBusinessEmail(t *testing.T) {
	assert.NoError(t, ValidateBusinessEmail("ali@acme.example"))
	assert.Error(t, ValidateBusinessEmail("not-an-email"))
	assert.Error(t, ValidateBusinessEmail("ali@gmail.com"))
	assert.Error(t, ValidateBusinessEmail("ali@Yahoo.COM"))
	assert.Error(t, ValidateBusinessEmail(""))
}

func TestValidateMobile(t *testing.T) {
	assert.NoError(t, ValidateMobile("09121234567", true))
	assert.NoError(t, ValidateMobile("+9891212345", false))
	assert.Error(t, ValidateMobile("09121234567890", true), "too long")
	assert.Error(t, ValidateMobile("091212345", true), "too short")
	assert.Error(t, ValidateMobile("0912123456a", true), "non-digit")
	assert.Error(t, ValidateMobile("+9891212345", true), "strict requires local prefix")
}

func TestValidatePhone(t *testing.T) {
	assert.NoError(t, ValidatePhone("02188776655"))
	assert.Error(t, ValidatePhone("09121234567"), "mobile prefix")
	assert.Error(t, ValidatePhone("9121234567"), "mobile prefix without zero")
	assert.Error(t, ValidatePhone("0218877665"), "short")
}

func TestValidateNationalCode(t *testing.T) {
	assert.NoError(t, ValidateNationalCode("0013542419"))
	assert.NoError(t, ValidateNationalCode("1234567891"))
	assert.Error(t, ValidateNationalCode("0013542410"), "checksum mismatch")
	assert.Error(t, ValidateNationalCode("0000000000"), "all zeros")
	assert.Error(t, ValidateNationalCode("001354241"), "short")
	assert.Error(t, ValidateNationalCode("00135424199"), "long")
	assert.Error(t, ValidateNationalCode("00135424a9"), "non-digit")
}

func TestValidatePostalCode(t *testing.T) {
	assert.NoError(t, ValidatePostalCode("1234567890"))
	assert.Error(t, ValidatePostalCode("123456789"))
}
