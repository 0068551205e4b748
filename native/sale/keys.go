package sale

// Storage abstracts the subset of state manager functionality the sale
// ledgers require.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVAppend(key []byte, value []byte) error
	KVGetList(key []byte, out interface{}) error
}

const (
	saleConfigPrefix   = "ico/sale/"
	saleIndexKey       = "ico/sales"
	assetPrefix        = "ico/asset/"
	assetIndexKey      = "ico/assets"
	contribCountPrefix = "ico/contrib/count/"
	contribRecPrefix   = "ico/contrib/rec/"
	summaryPrefix      = "ico/summary/"
	claimPrefix        = "ico/claim/"
	contributorsPrefix = "ico/contributors/"
	claimantsPrefix    = "ico/claimants/"
	engineMetaKey      = "ico/engine"
	pausePrefix        = "ico/pause/"
)

func pauseKey(module string) []byte {
	return []byte(pausePrefix + module)
}

func saleConfigKey(saleType string) []byte {
	return []byte(saleConfigPrefix + saleType)
}

func assetKey(symbol string) []byte {
	return []byte(assetPrefix + symbol)
}

func contribCountKey(saleType string, user [20]byte) []byte {
	return append([]byte(contribCountPrefix+saleType+"/"), user[:]...)
}

func contribRecordKey(saleType string, user [20]byte, index uint64) []byte {
	key := append([]byte(contribRecPrefix+saleType+"/"), user[:]...)
	key = append(key, '/')
	return appendUint(key, index)
}

func summaryKey(saleType string, user [20]byte) []byte {
	return append([]byte(summaryPrefix+saleType+"/"), user[:]...)
}

func claimKey(saleType string, user [20]byte) []byte {
	return append([]byte(claimPrefix+saleType+"/"), user[:]...)
}

func appendUint(key []byte, v uint64) []byte {
	var buf [8]byte
	for i := 7; i >= 0; i-- {
		buf[i] = byte(v)
		v >>= 8
	}
	return append(key, buf[:]...)
}
