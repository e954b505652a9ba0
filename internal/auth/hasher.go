package auth

import (
	"golang.org/x/crypto/bcrypt"
)

// BcryptHasher は bcrypt による PasswordHasher です。
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher は指定コストの BcryptHasher を作成します。範囲外なら既定コストを使います。
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

// Hash は平文パスワードをハッシュ化します。
func (h *BcryptHasher) Hash(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Verify は平文とハッシュが一致するかを返します。比較は bcrypt が定数時間で行います。
func (h *BcryptHasher) Verify(plain, hash string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
