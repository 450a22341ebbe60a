package credentials

import (
	"encoding/asn1"
	"encoding/pem"
	"math/big"
	"os"
)

// DHParams holds a Diffie-Hellman group modulus and generator.
type DHParams struct {
	P *big.Int
	G *big.Int
}

// RFC 5114 section 2.1: 1024-bit MODP group with 160-bit prime order
// subgroup. Used whenever no DH parameter file can be loaded.
const (
	rfc5114ModP1024P = "B10B8F96A080E01DDE92DE5EAE5D54EC52C99FBCFB06A3C6" +
		"9A6A9DCA52D23B616073E28675A23D189838EF1E2EE652C0" +
		"13ECB4AEA906112324975C3CD49B83BFACCBDD7D90C4BD70" +
		"98488E9C219A73724EFFD6FAE5644738FAA31A4FF55BCCC0" +
		"A151AF5F0DC8B4BD45BF37DF365C1A65E68CFDA76D4DA708" +
		"DF1FB2BC2E4A4371"
	rfc5114ModP1024G = "A4D1CBD5C3FD34126765A442EFB99905F8104DD258AC507F" +
		"D6406CFF14266D31266FEA1E5C41564B777E690F5504F213" +
		"160217B4B01B886A5E91547F9E2749F4D7FBD7D3B9A92EE1" +
		"909D0D2263F80A76A6A24C087A091F531DBF0A0169B6A28A" +
		"D662A4D18E73AFA32D779D5918D08BC8858F4DCEF97C2A24" +
		"855E6EEB22B3B2E5"
)

// pkcs3DHParams is the PKCS#3 DHParameter ASN.1 structure.
type pkcs3DHParams struct {
	P *big.Int
	G *big.Int
	L int `asn1:"optional"`
}

// DefaultDHParams returns the hardcoded RFC 5114 MODP-1024 group.
func DefaultDHParams() DHParams {
	p, _ := new(big.Int).SetString(rfc5114ModP1024P, 16)
	g, _ := new(big.Int).SetString(rfc5114ModP1024G, 16)
	return DHParams{P: p, G: g}
}

// ParseDHParamsPEM parses a PEM "DH PARAMETERS" block (PKCS#3).
func ParseDHParamsPEM(data []byte) (DHParams, error) {
	for len(data) > 0 {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}
		if block.Type != "DH PARAMETERS" {
			continue
		}

		var params pkcs3DHParams
		if _, err := asn1.Unmarshal(block.Bytes, &params); err != nil {
			return DHParams{}, NewConfigErrorWithCause("", "failed to parse DH parameters", err)
		}
		if params.P == nil || params.G == nil || params.P.Sign() <= 0 || params.G.Sign() <= 0 {
			return DHParams{}, NewConfigErrorWithCause("", "degenerate DH parameters", ErrBadDHParams)
		}
		return DHParams{P: params.P, G: params.G}, nil
	}
	return DHParams{}, NewConfigErrorWithCause("", "no DH PARAMETERS block found", ErrBadDHParams)
}

// LoadDHParamsFile loads PKCS#3 DH parameters from a PEM file.
func LoadDHParamsFile(path string) (DHParams, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from host configuration
	if err != nil {
		return DHParams{}, NewConfigErrorWithCause(path, "failed to read DH parameter file", err)
	}
	params, err := ParseDHParamsPEM(data)
	if err != nil {
		return DHParams{}, NewConfigErrorWithCause(path, "failed to parse DH parameter file", err)
	}
	return params, nil
}

// BitLen returns the modulus size in bits, or zero for an empty group.
func (d DHParams) BitLen() int {
	if d.P == nil {
		return 0
	}
	return d.P.BitLen()
}
