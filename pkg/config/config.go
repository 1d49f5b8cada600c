package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	OpenAI    OpenAIConfig
	Pinecone  PineconeConfig
	Redis     RedisConfig
	SQLite    SQLiteConfig
	Knowledge KnowledgeConfig
	Retrieval RetrievalConfig
	Ingestion IngestionConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
	BodyLimit    int
}

type OpenAIConfig struct {
	APIKey         string
	EmbeddingModel string
	EmbeddingDim   int
}

type PineconeConfig struct {
	APIKey          string
	ControllerURL   string
	IndexName       string
	Environment     string
	Namespace       string
	QueryTimeoutSec int
	QuickTimeoutSec int
}

type RedisConfig struct {
	Enabled         bool
	Host            string
	Port            int
	Password        string
	DB              int
	EmbeddingTTLMin int
	QueryTTLMin     int
}

type SQLiteConfig struct {
	Path string
}

type KnowledgeConfig struct {
	IndexPath     string
	FallbackPaths []string
}

type RetrievalConfig struct {
	TopK                    int
	RetrievalTopK           int
	Threshold               float64
	Confidence              float64
	MaxConcurrentNamespaces int
}

type IngestionConfig struct {
	DocsDir      string
	ChunkSize    int
	ChunkOverlap int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/koval-retrieval")

	viper.SetEnvPrefix("KOVAL")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readTimeout", 30)
	viper.SetDefault("server.writeTimeout", 30)
	viper.SetDefault("server.bodyLimit", 10485760)

	viper.SetDefault("openai.embeddingModel", "text-embedding-3-small")
	viper.SetDefault("openai.embeddingDim", 1536)

	viper.SetDefault("pinecone.controllerURL", "https://api.pinecone.io")
	viper.SetDefault("pinecone.indexName", "koval-knowledge")
	viper.SetDefault("pinecone.environment", "us-east-1-aws")
	viper.SetDefault("pinecone.namespace", "shared")
	viper.SetDefault("pinecone.queryTimeoutSec", 10)
	viper.SetDefault("pinecone.quickTimeoutSec", 5)

	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.embeddingTTLMin", 1440)
	viper.SetDefault("redis.queryTTLMin", 10)

	viper.SetDefault("sqlite.path", "./data/retrieval.db")

	viper.SetDefault("knowledge.indexPath", "./data/knowledge-index.json")
	viper.SetDefault("knowledge.fallbackPaths", []string{
		"./knowledge-index.json",
		"/etc/koval-retrieval/knowledge-index.json",
	})

	viper.SetDefault("retrieval.topK", 5)
	viper.SetDefault("retrieval.retrievalTopK", 10)
	viper.SetDefault("retrieval.threshold", 0.3)
	viper.SetDefault("retrieval.confidence", 0.85)
	viper.SetDefault("retrieval.maxConcurrentNamespaces", 5)

	viper.SetDefault("ingestion.docsDir", "./docs")
	viper.SetDefault("ingestion.chunkSize", 1000)
	viper.SetDefault("ingestion.chunkOverlap", 120)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}
