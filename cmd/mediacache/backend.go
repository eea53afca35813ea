package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/meigma/mediacache"
	"github.com/meigma/mediacache/cache/disk"
	"github.com/meigma/mediacache/cache/memory"
	"github.com/meigma/mediacache/config"
	"github.com/meigma/mediacache/pipeline"
	"github.com/meigma/mediacache/remote"
	remotehttp "github.com/meigma/mediacache/remote/http"
	"github.com/meigma/mediacache/remote/oci"
	"github.com/meigma/mediacache/remote/s3"
	"github.com/meigma/mediacache/transfer"
)

// newBackend builds the remote store named by cfg.Remote.Backend.
func newBackend(cfg *config.Config) (remote.Store, error) {
	client := remote.NewHTTPClient(cfg.Transfer.RequestTimeout)

	switch rc := cfg.Remote; rc.Backend {
	case "http":
		opts := []remotehttp.Option{remotehttp.WithClient(client)}
		for k, v := range rc.HTTP.Headers {
			opts = append(opts, remotehttp.WithHeader(k, v))
		}
		if rc.HTTP.BearerToken != "" {
			opts = append(opts, remotehttp.WithBearerToken(rc.HTTP.BearerToken))
		}
		if rc.HTTP.PublicURL != "" {
			opts = append(opts, remotehttp.WithPublicURL(rc.HTTP.PublicURL))
		}
		return remotehttp.New(rc.HTTP.BaseURL, opts...)

	case "s3":
		return s3.New(s3.Config{
			Endpoint:  rc.S3.Endpoint,
			Region:    rc.S3.Region,
			Bucket:    rc.S3.Bucket,
			AccessKey: rc.S3.AccessKey,
			SecretKey: rc.S3.SecretKey,
			UseSSL:    rc.S3.UseSSL,
			PathStyle: rc.S3.PathStyle,
			Prefix:    rc.S3.Prefix,
			PublicURL: rc.S3.PublicURL,
			Transport: client.Transport,
		})

	case "oci":
		opts := []oci.Option{
			oci.WithHTTPClient(client),
			oci.WithPlainHTTP(rc.OCI.PlainHTTP),
		}
		if rc.OCI.UserAgent != "" {
			opts = append(opts, oci.WithUserAgent(rc.OCI.UserAgent))
		}
		registry := registryHost(rc.OCI.Repository)
		switch {
		case rc.OCI.Token != "":
			opts = append(opts, oci.WithStaticToken(registry, rc.OCI.Token))
		case rc.OCI.Username != "":
			opts = append(opts, oci.WithStaticCredentials(registry, rc.OCI.Username, rc.OCI.Password))
		case rc.OCI.DockerConfig:
			opts = append(opts, oci.WithDockerConfig())
		default:
			opts = append(opts, oci.WithAnonymous())
		}
		return oci.New(rc.OCI.Repository, opts...)
	}
	return nil, fmt.Errorf("unknown backend %q", cfg.Remote.Backend)
}

// newCoordinator wires the tiers, pipeline and transfer settings from cfg.
func newCoordinator(cfg *config.Config, store remote.Store, logger *slog.Logger) (*mediacache.Coordinator, error) {
	format, err := pipeline.ParseFormat(cfg.Pipeline.Format)
	if err != nil {
		return nil, err
	}
	diskOpts := []disk.Option{disk.WithMaxBytes(cfg.Cache.DiskMaxBytes)}
	if cfg.Cache.Compression == "zstd" {
		diskOpts = append(diskOpts, disk.WithCompression(disk.CompressionZstd))
	}

	return mediacache.New(store,
		mediacache.WithLogger(logger),
		mediacache.WithMemoryStore(memory.New(
			memory.WithMaxBytes(cfg.Cache.MemoryMaxBytes),
			memory.WithMaxEntries(cfg.Cache.MemoryMaxEntries),
		)),
		mediacache.WithCacheDir(cfg.Cache.Dir, diskOpts...),
		mediacache.WithPipelineOptions(
			pipeline.WithMaxDimension(cfg.Pipeline.MaxDimension),
			pipeline.WithQuality(cfg.Pipeline.Quality),
			pipeline.WithMaxSizeBytes(cfg.Pipeline.MaxSizeBytes),
			pipeline.WithFormat(format),
		),
		mediacache.WithTransferOptions(transfer.WithResourceTimeout(cfg.Transfer.ResourceTimeout)),
		mediacache.WithPublishRetry(cfg.Transfer.PublishRetries),
		mediacache.WithPreloadConcurrency(cfg.Transfer.PreloadConcurrency),
	)
}

// registryHost returns the host part of a repository reference.
func registryHost(repository string) string {
	host, _, _ := strings.Cut(repository, "/")
	return host
}
