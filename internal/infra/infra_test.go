package infra

import (
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKeyHex = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestEncryptorRoundTrip(t *testing.T) {
	enc, err := NewEncryptor(testKeyHex)
	require.NoError(t, err)

	sealed, err := enc.EncryptString("whsec_provider_secret")
	require.NoError(t, err)
	assert.NotContains(t, sealed, "whsec", "ciphertext must not leak plaintext")

	plain, err := enc.DecryptString(sealed)
	require.NoError(t, err)
	assert.Equal(t, "whsec_provider_secret", plain)

	// Same plaintext seals differently each time.
	again, err := enc.EncryptString("whsec_provider_secret")
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again)
}

func TestEncryptorRejectsBadKey(t *testing.T) {
	_, err := NewEncryptor("not-hex")
	assert.Error(t, err)

	_, err = NewEncryptor("aabbcc")
	assert.Error(t, err, "key must be exactly 32 bytes")
}

func TestEncryptorRejectsTamperedCiphertext(t *testing.T) {
	enc, err := NewEncryptor(testKeyHex)
	require.NoError(t, err)

	sealed, err := enc.Encrypt([]byte("balance=100.00"))
	require.NoError(t, err)

	sealed[len(sealed)-1] ^= 0xff
	_, err = enc.Decrypt(sealed)
	assert.Error(t, err)

	_, err = enc.Decrypt([]byte{0x01, 0x02})
	assert.Error(t, err, "shorter than the nonce")
}

func TestNumericDecimalRoundTrip(t *testing.T) {
	for _, s := range []string{"0", "10.50", "-3.07", "999999999999.99"} {
		d := decimal.RequireFromString(s)
		num, err := DecimalToNumeric(d)
		require.NoError(t, err, s)
		back, err := NumericToDecimal(num)
		require.NoError(t, err, s)
		assert.True(t, d.Equal(back), "expected %s, got %s", d, back)
	}
}

func TestDecimalToNumericRejectsOverflow(t *testing.T) {
	_, err := DecimalToNumeric(decimal.New(1, 16))
	assert.Error(t, err, "10^16 no longer fits numeric(18,2)")

	_, err = DecimalToNumeric(decimal.New(-1, 16))
	assert.Error(t, err)

	_, err = DecimalToNumeric(decimal.RequireFromString("9999999999999999.99"))
	assert.NoError(t, err, "largest representable value")
}

func TestNumericToDecimalRejectsInvalid(t *testing.T) {
	_, err := NumericToDecimal(pgtype.Numeric{})
	assert.Error(t, err, "NULL")

	_, err = NumericToDecimal(pgtype.Numeric{Valid: true, NaN: true})
	assert.Error(t, err, "NaN")

	_, err = NumericToDecimal(pgtype.Numeric{Valid: true, InfinityModifier: pgtype.Infinity})
	assert.Error(t, err, "infinity")
}

func TestConfigAMLThresholds(t *testing.T) {
	cfg := &Config{AMLThresholdOverrides: "eur=15000, USD=10000,bad,=5,GBP="}
	got := cfg.AMLThresholds()
	assert.Equal(t, map[string]string{"EUR": "15000", "USD": "10000"}, got)

	assert.Empty(t, (&Config{}).AMLThresholds())
}

func TestConfigValidate(t *testing.T) {
	cfg := &Config{
		EncryptionKey:  testKeyHex,
		InternalJWTKey: strings.Repeat("k", 32),
	}
	assert.NoError(t, cfg.Validate())

	assert.Error(t, (&Config{EncryptionKey: "short"}).Validate())
	assert.Error(t, (&Config{EncryptionKey: testKeyHex, InternalJWTKey: "short"}).Validate())

	insecure := &Config{AllowInsecureDefaults: true}
	assert.NoError(t, insecure.Validate())
}

func TestConfigDSN(t *testing.T) {
	cfg := &Config{DatabaseURL: "postgres://u:p@db:5432/hub"}
	assert.Equal(t, "postgres://u:p@db:5432/hub", cfg.DSN())

	cfg = &Config{PGUser: "hub", PGPassword: "pw", PGHost: "localhost", PGPort: 5432, PGDatabase: "hub"}
	assert.Equal(t, "postgres://hub:pw@localhost:5432/hub?sslmode=disable", cfg.DSN())
}
