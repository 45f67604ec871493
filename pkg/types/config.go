package types

type Config struct {
	Environment     string `envconfig:"ENVIRONMENT" default:"development"`
	ServerPort      uint   `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeoutSec  uint   `envconfig:"READ_TIMEOUT_SEC" default:"10"`
	WriteTimeoutSec uint   `envconfig:"WRITE_TIMEOUT_SEC" default:"15"`
	LogLevel        string `envconfig:"LOG_LEVEL" default:"info"`

	// Submission store: csv, sqlite or postgres
	StoreDriver     string `envconfig:"STORE_DRIVER" default:"csv"`
	DataDir         string `envconfig:"DATA_DIR" default:"data"`
	SubmissionsFile string `envconfig:"SUBMISSIONS_FILE"`
	SQLitePath      string `envconfig:"SQLITE_PATH"`
	DatabaseURL     string `envconfig:"DATABASE_URL"`

	// Image blobs: local, s3 or supabase
	BlobDriver        string `envconfig:"BLOB_DRIVER" default:"local"`
	ImageDir          string `envconfig:"IMAGE_DIR"`
	S3Bucket          string `envconfig:"S3_BUCKET"`
	S3Prefix          string `envconfig:"S3_PREFIX" default:"submissions"`
	SupabaseProjectID string `envconfig:"SUPABASE_PROJECT_ID"`
	SupabaseAPIKey    string `envconfig:"SUPABASE_API_KEY"`
	SupabaseBucket    string `envconfig:"SUPABASE_BUCKET" default:"crop-images"`

	MaxUploadBytes int64 `envconfig:"MAX_UPLOAD_BYTES" default:"10485760"`

	// Session cookie
	CookieName       string `envconfig:"SESSION_COOKIE_NAME" default:"session_id"`
	SessionMaxAgeSec int    `envconfig:"SESSION_MAX_AGE_SEC" default:"604800"` // 7 days

	// Cookie encryption keys (base64 encoded)
	// openssl rand -base64 32
	// to generate values
	CookieHashKey  string `envconfig:"COOKIE_HASH_KEY"`  // 32 or 64 bytes
	CookieBlockKey string `envconfig:"COOKIE_BLOCK_KEY"` // 16, 24, or 32 bytes

	// Demo gate for the official sign-in; empty disables it.
	OfficialPasscode string `envconfig:"OFFICIAL_PASSCODE"`
}
