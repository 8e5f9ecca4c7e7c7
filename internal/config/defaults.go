package config

// Default feature schema matches the fitted artifacts shipped with the
// training pipeline: rolling windows of 3/6/12 readings, lags 1/2/3/6/12.
var (
	defaultWindows  = []int{3, 6, 12}
	defaultLags     = []int{1, 2, 3, 6, 12}
	defaultChannels = []string{"temperature", "vibration", "pressure", "rpm", "current"}
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/yobou/data/db/telemetry.db"
	}
	if cfg.Storage.BleveIndexPath == "" {
		cfg.Storage.BleveIndexPath = "/usr/local/var/yobou/data/indices/bleve"
	}
	if cfg.Storage.VectorIndexPath == "" {
		cfg.Storage.VectorIndexPath = "/usr/local/var/yobou/data/indices/vectors"
	}
	if cfg.Storage.ArtifactDir == "" {
		cfg.Storage.ArtifactDir = "/usr/local/var/yobou/data/models"
	}
	if cfg.Embedding.ModelPath == "" {
		cfg.Embedding.ModelPath = "/usr/local/var/yobou/data/models/all-MiniLM-L6-v2.onnx"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Features.Windows == nil {
		cfg.Features.Windows = defaultWindows
	}
	if cfg.Features.Lags == nil {
		cfg.Features.Lags = defaultLags
	}
	if cfg.Features.Channels == nil {
		cfg.Features.Channels = defaultChannels
	}
	if cfg.Features.Sentinel == 0 {
		cfg.Features.Sentinel = -1.0
	}
	if cfg.Scoring.Horizons == nil {
		cfg.Scoring.Horizons = []string{"24h", "72h", "168h"}
	}
	if cfg.Scoring.CacheTTLSeconds == 0 {
		cfg.Scoring.CacheTTLSeconds = 30
	}
	if cfg.Scoring.TopFactors == 0 {
		cfg.Scoring.TopFactors = 5
	}
	if cfg.Retrieval.ChunkSize == 0 {
		cfg.Retrieval.ChunkSize = 300
	}
	if cfg.Retrieval.ChunkOverlap == 0 {
		cfg.Retrieval.ChunkOverlap = 60
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 5
	}
	// Raw cosine between question and chunk embeddings. Calibrated so a
	// single shared token in a long chunk stays below the floor.
	if cfg.Retrieval.SimilarityFloor == 0 {
		cfg.Retrieval.SimilarityFloor = 0.2
	}
	if cfg.Retrieval.KeywordWeight == 0 {
		cfg.Retrieval.KeywordWeight = 0.3
	}
	if cfg.Retrieval.MaxCitations == 0 {
		cfg.Retrieval.MaxCitations = 3
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".txt", ".md", ".pdf", ".docx", ".xlsx"}
	}
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}
