package testdata

// TestVector is a known password/plaintext/record triple for the legacy format.
// Ciphertexts were produced independently with OpenSSL DES-CBC using PBKDF1-MD5 key material.
type TestVector struct {
	Name       string
	Password   string
	Plaintext  string
	Checksum   uint64
	Ciphertext string // Hex
}

// Vectors contains known-answer vectors for the codec.
var Vectors = []TestVector{
	{
		Name:       "short text",
		Password:   "swordfish",
		Plaintext:  "hello world",
		Checksum:   0x0d4a1185,
		Ciphertext: "108d9eb1a4b01a2c6703850cd6f8f93f",
	},
	{
		Name:       "empty plaintext",
		Password:   "swordfish",
		Plaintext:  "",
		Checksum:   0,
		Ciphertext: "45042df2695975e5",
	},
	{
		Name:       "multi block",
		Password:   "password",
		Plaintext:  "The quick brown fox jumps over the lazy dog",
		Checksum:   0x414fa339,
		Ciphertext: "b3db5929ee0c91f3d346d1caa367e37da3886545abebb4d5e9eef7d3d86d804291158bdc660c76d22ca55f6e571f40f6",
	},
	{
		Name:       "exact block adds full padding block",
		Password:   "password",
		Plaintext:  "12345678",
		Checksum:   0x9ae0daaf,
		Ciphertext: "0c1e008cb68ca4f75d7129fa494e7031",
	},
	{
		Name:       "empty password",
		Password:   "",
		Plaintext:  "12345678",
		Checksum:   0x9ae0daaf,
		Ciphertext: "d342984b699f283c187ce1ecb519acb9",
	},
}
