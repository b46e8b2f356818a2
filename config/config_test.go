package config_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/gemini-proxy/config"
)

var envKeys = []string{
	"PORT",
	"GEMINI_API_KEY",
	"UPSTREAM_API_KEY",
	"UPSTREAM_MODEL",
	"SERVER_ADDRESS",
	"SERVER_ENVIRONMENT",
	"SERVER_MAX_BODY_BYTES",
	"CORS_ALLOWED_ORIGINS",
}

var _ = Describe("Config", func() {
	var (
		tempDir     string
		originalDir string
	)

	BeforeEach(func() {
		var err error
		originalDir, err = os.Getwd()
		Expect(err).NotTo(HaveOccurred())

		tempDir, err = os.MkdirTemp("", "config-test-*")
		Expect(err).NotTo(HaveOccurred())

		Expect(os.Chdir(tempDir)).To(Succeed())

		for _, key := range envKeys {
			os.Unsetenv(key)
		}
	})

	AfterEach(func() {
		Expect(os.Chdir(originalDir)).To(Succeed())
		os.RemoveAll(tempDir)
		for _, key := range envKeys {
			os.Unsetenv(key)
		}
	})

	writeFile := func(name, content string) string {
		path := filepath.Join(tempDir, name)
		Expect(os.WriteFile(path, []byte(content), 0644)).To(Succeed())
		return path
	}

	Describe("Load", func() {
		Context("without a config file", func() {
			It("should use defaults", func() {
				cfg, err := config.Load("")
				Expect(err).NotTo(HaveOccurred())

				Expect(cfg.Server.Address).To(Equal(":3000"))
				Expect(cfg.Server.Environment).To(Equal(config.EnvDev))
				Expect(cfg.Server.ProxyProtocol).To(BeFalse())
				Expect(cfg.Server.MaxBodyBytes).To(Equal(int64(100 * 1024)))
				Expect(cfg.Upstream.BaseURL).To(Equal("https://generativelanguage.googleapis.com"))
				Expect(cfg.Upstream.Model).To(Equal("gemini-2.0-flash"))
				Expect(cfg.Upstream.APIKey).To(BeEmpty())
				Expect(cfg.Static.Dir).To(Equal("public"))
				Expect(cfg.CORS.AllowedOrigins).To(Equal([]string{"*"}))
				Expect(cfg.Metrics.BufferSize).To(Equal(1000))
				Expect(cfg.Logging.Level).To(Equal(config.LogLevelInfo))
			})

			It("should not treat a missing API key as invalid", func() {
				_, err := config.Load("")
				Expect(err).NotTo(HaveOccurred())
			})
		})

		Context("with environment variables", func() {
			It("should listen on PORT when set", func() {
				os.Setenv("PORT", "8081")

				cfg, err := config.Load("")
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.Server.Address).To(Equal(":8081"))
			})

			It("should prefer SERVER_ADDRESS over PORT", func() {
				os.Setenv("PORT", "8081")
				os.Setenv("SERVER_ADDRESS", "127.0.0.1:9090")

				cfg, err := config.Load("")
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.Server.Address).To(Equal("127.0.0.1:9090"))
			})

			It("should read the credential from GEMINI_API_KEY", func() {
				os.Setenv("GEMINI_API_KEY", "secret-key")

				cfg, err := config.Load("")
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.Upstream.APIKey).To(Equal("secret-key"))
			})

			It("should fall back to UPSTREAM_API_KEY", func() {
				os.Setenv("UPSTREAM_API_KEY", "other-key")

				cfg, err := config.Load("")
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.Upstream.APIKey).To(Equal("other-key"))
			})

			It("should parse numeric and list overrides", func() {
				os.Setenv("SERVER_MAX_BODY_BYTES", "2048")
				os.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example.com,https://b.example.com")

				cfg, err := config.Load("")
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.Server.MaxBodyBytes).To(Equal(int64(2048)))
				Expect(cfg.CORS.AllowedOrigins).To(Equal([]string{"https://a.example.com", "https://b.example.com"}))
			})

			It("should reject an unknown environment", func() {
				os.Setenv("SERVER_ENVIRONMENT", "qa")

				cfg, err := config.Load("")
				Expect(err).To(HaveOccurred())
				Expect(cfg).To(BeNil())
			})
		})

		Context("with a .env file", func() {
			It("should load the credential from it", func() {
				writeFile(".env", "GEMINI_API_KEY=from-dotenv\n")

				cfg, err := config.Load("")
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.Upstream.APIKey).To(Equal("from-dotenv"))
			})

			It("should not override variables already set", func() {
				writeFile(".env", "GEMINI_API_KEY=from-dotenv\n")
				os.Setenv("GEMINI_API_KEY", "from-env")

				cfg, err := config.Load("")
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.Upstream.APIKey).To(Equal("from-env"))
			})
		})

		Context("with a config file in the working directory", func() {
			BeforeEach(func() {
				writeFile("config.yaml", `
server:
  address: ":8080"
  environment: "prod"
  proxy_protocol: true

upstream:
  base_url: "http://localhost:9000"
  model: "gemini-1.5-pro"
  api_key: "file-key"

static:
  dir: "assets"

cors:
  allowed_origins:
    - "https://app.example.com"

logging:
  level: "debug"
`)
			})

			It("should load configuration successfully", func() {
				cfg, err := config.Load("")
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg).NotTo(BeNil())
			})

			It("should parse server settings", func() {
				cfg, _ := config.Load("")
				Expect(cfg.Server.Address).To(Equal(":8080"))
				Expect(cfg.Server.Environment).To(Equal(config.EnvProd))
				Expect(cfg.Server.ProxyProtocol).To(BeTrue())
			})

			It("should parse upstream settings", func() {
				cfg, _ := config.Load("")
				Expect(cfg.Upstream.BaseURL).To(Equal("http://localhost:9000"))
				Expect(cfg.Upstream.Model).To(Equal("gemini-1.5-pro"))
				Expect(cfg.Upstream.APIKey).To(Equal("file-key"))
			})

			It("should let the environment win over the file", func() {
				os.Setenv("GEMINI_API_KEY", "env-key")
				os.Setenv("UPSTREAM_MODEL", "gemini-2.5-flash")

				cfg, err := config.Load("")
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.Upstream.APIKey).To(Equal("env-key"))
				Expect(cfg.Upstream.Model).To(Equal("gemini-2.5-flash"))
			})

			It("should keep defaults for keys the file omits", func() {
				cfg, _ := config.Load("")
				Expect(cfg.Server.MaxBodyBytes).To(Equal(int64(100 * 1024)))
				Expect(cfg.Metrics.BufferSize).To(Equal(1000))
			})
		})

		Context("with an explicit config file", func() {
			It("should load it", func() {
				path := writeFile("proxy.yaml", `
upstream:
  model: "gemini-1.5-flash"
`)
				cfg, err := config.Load(path)
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.Upstream.Model).To(Equal("gemini-1.5-flash"))
			})

			It("should fail when the file does not exist", func() {
				cfg, err := config.Load(filepath.Join(tempDir, "missing.yaml"))
				Expect(err).To(HaveOccurred())
				Expect(cfg).To(BeNil())
			})

			It("should fail on an invalid upstream URL", func() {
				path := writeFile("bad.yaml", `
upstream:
  base_url: "ftp://example.com"
`)
				cfg, err := config.Load(path)
				Expect(err).To(HaveOccurred())
				Expect(cfg).To(BeNil())
			})
		})
	})

	Describe("Validate", func() {
		var cfg *config.Config

		BeforeEach(func() {
			cfg = &config.Config{
				Server: config.ServerConfig{
					Address:      ":3000",
					Environment:  config.EnvDev,
					MaxBodyBytes: 1024,
				},
				Upstream: config.UpstreamConfig{
					BaseURL: "https://generativelanguage.googleapis.com",
					Model:   "gemini-2.0-flash",
				},
				CORS:    config.CORSConfig{AllowedOrigins: []string{"*"}},
				Metrics: config.MetricsConfig{BufferSize: 10},
				Logging: config.LoggingConfig{Level: config.LogLevelInfo},
			}
		})

		It("should accept a valid configuration", func() {
			Expect(cfg.Validate()).To(Succeed())
		})

		It("should reject an address without a port", func() {
			cfg.Server.Address = "localhost"
			Expect(cfg.Validate()).NotTo(Succeed())
		})

		It("should reject a non-positive body limit", func() {
			cfg.Server.MaxBodyBytes = 0
			Expect(cfg.Validate()).NotTo(Succeed())
		})

		It("should reject a model containing a path separator", func() {
			cfg.Upstream.Model = "models/gemini"
			Expect(cfg.Validate()).NotTo(Succeed())
		})

		It("should reject a base URL with a query string", func() {
			cfg.Upstream.BaseURL = "https://example.com?key=abc"
			Expect(cfg.Validate()).NotTo(Succeed())
		})

		It("should reject a malformed origin", func() {
			cfg.CORS.AllowedOrigins = []string{"app.example.com"}
			Expect(cfg.Validate()).NotTo(Succeed())
		})

		It("should reject an unknown log level", func() {
			cfg.Logging.Level = "trace"
			Expect(cfg.Validate()).NotTo(Succeed())
		})
	})
})
