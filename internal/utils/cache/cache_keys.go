package cache

import (
	"fmt"
)

type EntityType string

const (
	EntitySettlement    EntityType = "settlement"
	EntityProviderToken EntityType = "provider_token"
)

type KeyType string

const (
	KeyReference KeyType = "reference"
	KeyProvider  KeyType = "provider"
)

// GenerateKey creates a standardized cache key
func GenerateKey(entity EntityType, keyType KeyType, value interface{}) string {
	return fmt.Sprintf("%s:%s:%v", entity, keyType, value)
}

// SettlementKey is the key a terminal settlement status is cached under.
func SettlementKey(reference string) string {
	return GenerateKey(EntitySettlement, KeyReference, reference)
}

// ProviderTokenKey is the key a provider access token is shared under.
func ProviderTokenKey(key string) string {
	return GenerateKey(EntityProviderToken, KeyProvider, key)
}
