package streaming

// PerformanceProfile is supplied by a platform capability probe and
// consumed read-only by the loader to bound level counts and decimation
// aggressiveness. The loader never re-detects capabilities itself.
type PerformanceProfile struct {
	// MaxTriangles caps the finest resolution the loader will decode.
	// Zero disables the cap.
	MaxTriangles int
	// ChunkSize is the preferred slice size for chunk-granular work.
	ChunkSize int
	// LODLevels bounds how many levels beyond the preview are built.
	LODLevels int
	// UseWorkerPool routes decode work through the task pool when true.
	UseWorkerPool bool
}

// DefaultProfile is a conservative profile for unknown platforms.
func DefaultProfile() PerformanceProfile {
	return PerformanceProfile{
		MaxTriangles:  2_000_000,
		ChunkSize:     1 << 20,
		LODLevels:     3,
		UseWorkerPool: true,
	}
}
