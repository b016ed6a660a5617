package interfaces

// Observer receives per-chunk and per-drain events from the drain loop
type Observer interface {
	// ObserveRead is called for each read chunk
	ObserveRead(bytes uint64, latencyNs uint64, success bool)

	// ObserveWrite is called for each write chunk
	ObserveWrite(bytes uint64, latencyNs uint64, success bool)

	// ObserveUnsupported is called for each rejected request
	ObserveUnsupported()

	// ObserveOutOfRange is called for each chunk outside the device
	ObserveOutOfRange(write bool, dropped bool)

	// ObserveDrain is called once per drain invocation with the number of
	// requests it completed
	ObserveDrain(requests uint32)
}
