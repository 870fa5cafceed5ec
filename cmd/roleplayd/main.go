// Command roleplayd boots the agent runtime: config, logging, the
// relational/vector/graph stores, the LLM and embedder clients, system
// config preload, and the memory worker pool. Transport (HTTP routing,
// auth) is an external collaborator and lives elsewhere.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/metastable-lab/roleplay/internal/agent"
	"github.com/metastable-lab/roleplay/internal/config"
	"github.com/metastable-lab/roleplay/internal/credit"
	"github.com/metastable-lab/roleplay/internal/embedding"
	"github.com/metastable-lab/roleplay/internal/llm/providers"
	"github.com/metastable-lab/roleplay/internal/memory"
	"github.com/metastable-lab/roleplay/internal/metrics"
	"github.com/metastable-lab/roleplay/internal/objectstore"
	"github.com/metastable-lab/roleplay/internal/persistence/databases"
	"github.com/metastable-lab/roleplay/internal/persistence/store"
	"github.com/metastable-lab/roleplay/internal/prompt"
	"github.com/metastable-lab/roleplay/internal/rlog"
	"github.com/metastable-lab/roleplay/internal/roleplay"
	"github.com/metastable-lab/roleplay/internal/toolschema"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	rlog.InitLogger(cfg.LogPath, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := databases.OpenPool(ctx, cfg.Databases, cfg.Databases.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("open database pool")
	}
	defer pool.Close()
	if err := store.Migrate(ctx, pool); err != nil {
		log.Fatal().Err(err).Msg("migrate")
	}
	st := store.NewPostgres(pool)

	vectorPool := pool
	if cfg.Databases.VectorDSN != cfg.Databases.DSN {
		vectorPool, err = databases.OpenPool(ctx, cfg.Databases, cfg.Databases.VectorDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("open vector pool")
		}
		defer vectorPool.Close()
	}
	vectors := databases.NewPostgresVector(vectorPool, cfg.Vector.Dimensions)
	graphPool := vectorPool
	if cfg.Databases.GraphDSN != cfg.Databases.VectorDSN {
		graphPool = pool
		if cfg.Databases.GraphDSN != cfg.Databases.DSN {
			graphPool, err = databases.OpenPool(ctx, cfg.Databases, cfg.Databases.GraphDSN)
			if err != nil {
				log.Fatal().Err(err).Msg("open graph pool")
			}
			defer graphPool.Close()
		}
	}
	graph := databases.NewPostgresGraph(graphPool, cfg.Vector.Dimensions)

	embedder := embedding.NewClient(cfg.Embedding)
	if !embedder.Ready() {
		log.Fatal().Msg("embedder is not configured (EMBED_BASE_URL, EMBED_MODEL)")
	}

	httpClient := &http.Client{}
	provider, err := providers.Build(cfg.LLM, httpClient)
	if err != nil {
		log.Fatal().Err(err).Msg("build llm provider")
	}
	rt := agent.NewRuntime(provider, cfg.LLM.ToolRetries, time.Duration(cfg.LLM.CallTimeoutSeconds)*time.Second)

	collector := metrics.New()
	ledger := credit.NewLedger(cfg.Credit, nil)
	composer := prompt.NewComposer(nil)
	codec := toolschema.NewMessagePartCodec("zh")

	queue := memory.NewQueue(1024)
	engine := roleplay.NewEngine(st, ledger, composer, rt, codec, queue, collector, nil)
	if err := engine.Preload(ctx); err != nil {
		log.Fatal().Err(err).Msg("preload roleplay system configs")
	}

	reconciler := memory.NewReconciler(vectors, embedder, rt, memory.NewUpdateAgent(), cfg.Vector, nil)
	graphMemory := memory.NewGraphMemory(graph, embedder, rt,
		memory.NewEntitiesAgent(), memory.NewRelationshipsAgent(), memory.NewDeleteAgent(), cfg.Graph, nil)
	updater := memory.NewUpdater(st, rt, memory.NewFactsAgent(), reconciler, graphMemory, collector, nil)
	if err := updater.Preload(ctx); err != nil {
		log.Fatal().Err(err).Msg("preload memory system configs")
	}

	if cfg.S3.Bucket != "" {
		s3store, err := objectstore.NewS3Store(ctx, cfg.S3, objectstore.WithHTTPClient(httpClient))
		if err != nil {
			log.Fatal().Err(err).Msg("open object store")
		}
		presigner := objectstore.NewS3Presigner(s3store, cfg.S3.PublicBaseURL)
		avatar := roleplay.NewAvatarAgent(s3store, presigner, httpClient)
		if err := avatar.Preload(ctx, st); err != nil {
			log.Fatal().Err(err).Msg("preload avatar system config")
		}
		engine.SetAvatarAgent(avatar)
	}

	worker := memory.NewWorker(st, updater, queue, 4)
	go worker.Run(ctx)

	log.Info().Msg("roleplayd up")
	<-ctx.Done()
	log.Info().Msg("roleplayd shutting down")
	queue.Close()
}
