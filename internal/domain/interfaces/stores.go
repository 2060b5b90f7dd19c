package interfaces

// LocalStore is the device-local key/value persistence used for the
// session record, the seed and a pending seed request. Get reports
// ok=false for a missing key.
type LocalStore interface {
	Get(key string) (value []byte, ok bool, err error)
	Set(key string, value []byte) error
	Remove(key string) error
}
