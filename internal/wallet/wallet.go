// Package wallet подтверждает владение адресом счёта подписью одноразового
// сообщения в формате personal_sign.
package wallet

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/mmeshcher/flysure/internal/model"
)

const (
	challengeTTL     = 5 * time.Minute
	challengeCleanup = 10 * time.Minute
)

var (
	// ErrUnknownChallenge возвращается для просроченного, уже использованного
	// или выданного другому адресу вызова.
	ErrUnknownChallenge = errors.New("wallet: unknown or expired challenge")
	// ErrInvalidSignature возвращается, если подпись не принадлежит адресу.
	ErrInvalidSignature = errors.New("wallet: invalid signature")
)

type challenge struct {
	address model.Address
	message string
}

// Verifier выдаёт одноразовые сообщения и проверяет их подписи.
type Verifier struct {
	mu         sync.Mutex
	challenges *cache.Cache
}

// NewVerifier создаёт Verifier с хранением вызовов в памяти процесса.
func NewVerifier() *Verifier {
	return &Verifier{challenges: cache.New(challengeTTL, challengeCleanup)}
}

// Challenge выдаёт адресу сообщение для подписи. Сообщение действует пять минут.
func (v *Verifier) Challenge(addr model.Address) (nonce, message string) {
	nonce = uuid.NewString()
	message = fmt.Sprintf("FlySure wallet connect\nAddress: %s\nNonce: %s", addr, nonce)
	v.challenges.Set(nonce, challenge{address: addr, message: message}, cache.DefaultExpiration)
	return nonce, message
}

// Verify проверяет, что signature подписывает выданное addr сообщение.
// Вызов снимается при любой попытке подписи.
func (v *Verifier) Verify(addr model.Address, nonce, signature string) error {
	v.mu.Lock()
	item, found := v.challenges.Get(nonce)
	if found && item.(challenge).address == addr {
		v.challenges.Delete(nonce)
	} else {
		found = false
	}
	v.mu.Unlock()

	if !found {
		return ErrUnknownChallenge
	}

	signer, err := Recover(item.(challenge).message, signature)
	if err != nil {
		return err
	}
	if signer != addr {
		return ErrInvalidSignature
	}
	return nil
}

// Recover возвращает адрес, подписавший сообщение. Принимает v как 0/1,
// так и 27/28.
func Recover(message, signature string) (model.Address, error) {
	sig, err := hexutil.Decode(signature)
	if err != nil || len(sig) != crypto.SignatureLength {
		return "", ErrInvalidSignature
	}
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return "", ErrInvalidSignature
	}
	return model.ParseAddress(crypto.PubkeyToAddress(*pub).Hex())
}

// Sign подписывает сообщение ключом так же, как кошелёк при personal_sign.
func Sign(key *ecdsa.PrivateKey, message string) (string, error) {
	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), key)
	if err != nil {
		return "", fmt.Errorf("wallet: sign: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig), nil
}

// ParseKey разбирает закрытый ключ в шестнадцатеричной записи.
func ParseKey(s string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil {
		return nil, fmt.Errorf("wallet: parse private key: %w", err)
	}
	return key, nil
}

// AddressOf возвращает адрес счёта ключа.
func AddressOf(key *ecdsa.PrivateKey) model.Address {
	return model.Address(strings.ToLower(crypto.PubkeyToAddress(key.PublicKey).Hex()))
}
