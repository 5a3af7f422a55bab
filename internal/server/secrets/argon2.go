package secrets

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"golang.org/x/crypto/argon2"
)

type Argon2Params struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

var DefaultArgon2Params = Argon2Params{
	Memory:      64 * 1024,
	Time:        1,
	Parallelism: 2,
	SaltLength:  16,
	KeyLength:   32,
}

// Argon2id produces PHC strings:
//
//	$argon2id$v=19$m=65536,t=1,p=2$<salt>$<hash>
type Argon2id struct {
	p Argon2Params
}

func NewArgon2id(p Argon2Params) *Argon2id {
	return &Argon2id{p: p}
}

func (a *Argon2id) Hash(plain string) (string, error) {
	salt := common.GenerateRandByteArray(int(a.p.SaltLength))
	key := argon2.IDKey([]byte(plain), salt, a.p.Time, a.p.Memory, a.p.Parallelism, a.p.KeyLength)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, a.p.Memory, a.p.Time, a.p.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

func (a *Argon2id) Verify(plain, hash string) (bool, error) {
	p, salt, key, err := decodePHC(hash)
	if err != nil {
		return false, err
	}
	got := argon2.IDKey([]byte(plain), salt, p.Time, p.Memory, p.Parallelism, uint32(len(key)))
	return subtle.ConstantTimeCompare(got, key) == 1, nil
}

func decodePHC(hash string) (Argon2Params, []byte, []byte, error) {
	var p Argon2Params

	parts := strings.Split(hash, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return p, nil, nil, errors.New("invalid argon2id hash")
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return p, nil, nil, errors.New("unsupported argon2 version")
	}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Time, &p.Parallelism); err != nil {
		return p, nil, nil, errors.New("invalid argon2 parameters")
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return p, nil, nil, errors.New("invalid salt encoding")
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return p, nil, nil, errors.New("invalid hash encoding")
	}
	return p, salt, key, nil
}
