package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ats-rank-go/internal/agent"
	"ats-rank-go/internal/api/handler"
	"ats-rank-go/internal/api/router"
	"ats-rank-go/internal/config"
	appLogger "ats-rank-go/internal/logger"
	"ats-rank-go/internal/parser"
	"ats-rank-go/internal/processor"
	"ats-rank-go/internal/ranker"
	"ats-rank-go/internal/storage"
	"ats-rank-go/internal/tracing"
	"ats-rank-go/internal/types"

	"github.com/cloudwego/hertz/pkg/app/server"
	hertzconfig "github.com/cloudwego/hertz/pkg/common/config"
	glog "github.com/cloudwego/hertz/pkg/common/hlog"
	hertzadapter "github.com/hertz-contrib/logger/zerolog"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"
	"github.com/spf13/pflag"
)

func main() {
	var configPath string
	pflag.StringVarP(&configPath, "config", "c", "", "配置文件路径")
	pflag.Parse()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		glog.Fatalf("加载配置失败: %v", err)
	}

	appLogger.Init(appLogger.Config{
		Level:        cfg.Logger.Level,
		Format:       cfg.Logger.Format,
		TimeFormat:   cfg.Logger.TimeFormat,
		ReportCaller: cfg.Logger.ReportCaller,
	})
	glog.SetLogger(hertzadapter.From(appLogger.Logger))
	log := appLogger.Logger
	glog.Info("配置加载成功")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.InitProvider(ctx, tracing.ProviderConfig{
		Enabled:      cfg.Tracing.Enabled,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		ServiceName:  cfg.Tracing.ServiceName,
		SampleRatio:  cfg.Tracing.SampleRatio,
	})
	if err != nil {
		glog.Fatalf("初始化链路追踪失败: %v", err)
	}
	defer func() {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelShutdown()
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("关闭链路追踪失败")
		}
	}()

	storageManager, err := storage.NewStorage(ctx, cfg, log)
	if err != nil {
		glog.Fatalf("初始化存储失败: %v", err)
	}
	defer storageManager.Close(log)
	glog.Info("存储服务初始化成功")

	if storageManager.MinIO == nil || storageManager.RabbitMQ == nil ||
		storageManager.Qdrant == nil || storageManager.MySQL == nil || storageManager.Redis == nil {
		glog.Fatalf("存在未初始化的存储组件，无法启动完整服务")
	}

	embedder, err := parser.NewAliyunEmbedder(cfg.Aliyun.APIKey, cfg.Aliyun.Embedding, log)
	if err != nil {
		glog.Fatalf("初始化Embedder失败: %v", err)
	}
	glog.Info("Embedder初始化成功")

	pdfExtractor, err := parser.NewEinoPDFTextExtractor(ctx, log)
	if err != nil {
		glog.Fatalf("初始化PDF提取器失败: %v", err)
	}

	extractModelName := cfg.SkillExtractor.ModelName
	if extractModelName == "" {
		extractModelName = cfg.GetModelForTask("skill_extractor")
	}
	extractModel, err := agent.NewQwenChatModel(cfg.Aliyun.APIKey, extractModelName, cfg.Aliyun.APIURL, log)
	if err != nil {
		glog.Fatalf("初始化技能抽取模型失败: %v", err)
	}
	if cfg.SkillExtractor.Temperature > 0 {
		extractModel.SetTemperature(cfg.SkillExtractor.Temperature)
	}
	skillExtractor := parser.NewTwoStageSkillExtractor(extractModel, log)
	glog.Info("技能抽取器初始化成功")

	retriever := ranker.NewRetriever(storageManager.Qdrant, log)
	scorer := ranker.NewSimilarityScorer(embedder, log)
	aggregator := ranker.NewAggregator(cfg.Ranker.Weights)
	orchestrator := ranker.NewOrchestrator(retriever, scorer, skillExtractor, aggregator, log,
		ranker.WithAutoTopK(cfg.Ranker.AutoTopK),
		ranker.WithCheapScoreConcurrency(cfg.Ranker.CheapScoreConcurrency),
	)
	glog.Info("评估编排器初始化成功")

	jdProcessor, err := processor.NewJDProcessor(embedder, storageManager.Qdrant,
		storageManager.Redis, storageManager.MySQL, cfg.Aliyun.Embedding.Model, log)
	if err != nil {
		glog.Fatalf("初始化JD处理器失败: %v", err)
	}

	ingestPipeline, err := processor.NewIngestPipeline(storageManager.MinIO, pdfExtractor,
		embedder, storageManager.Qdrant, storageManager.MySQL, log)
	if err != nil {
		glog.Fatalf("初始化入库流水线失败: %v", err)
	}

	rankWorker, err := processor.NewRankWorker(orchestrator, storageManager.Redis,
		storageManager.MySQL, storageManager.Redis, log,
		processor.WithDefaultMode(types.CostMode(cfg.Ranker.DefaultMode)))
	if err != nil {
		glog.Fatalf("初始化评估消费者失败: %v", err)
	}

	chatModelName := cfg.Chat.ModelName
	if chatModelName == "" {
		chatModelName = cfg.GetModelForTask("resume_chat")
	}
	chatModel, err := agent.NewQwenChatModel(cfg.Aliyun.APIKey, chatModelName, cfg.Aliyun.APIURL, log)
	if err != nil {
		glog.Fatalf("初始化问答模型失败: %v", err)
	}
	chatMemory, err := agent.NewRedisChatMemory(storageManager.Redis.Client,
		time.Duration(cfg.Redis.ChatMemoryExpireSeconds)*time.Second)
	if err != nil {
		glog.Fatalf("初始化会话记忆失败: %v", err)
	}
	qaAgent, err := agent.NewResumeQAAgent(chatModel, embedder, storageManager.Qdrant, chatMemory, log,
		agent.WithHistoryLimit(cfg.Chat.HistoryLimit),
		agent.WithContextTopK(cfg.Chat.ContextTopK),
	)
	if err != nil {
		glog.Fatalf("初始化简历问答代理失败: %v", err)
	}
	glog.Info("简历问答代理初始化成功")

	if err := storageManager.RabbitMQ.EnsureIngestTopology(); err != nil {
		glog.Fatalf("声明入库消息拓扑失败: %v", err)
	}
	if err := storageManager.RabbitMQ.EnsureRankTopology(); err != nil {
		glog.Fatalf("声明评估消息拓扑失败: %v", err)
	}

	prefetch := cfg.RabbitMQ.PrefetchCount
	if prefetch <= 0 {
		prefetch = 10
	}
	stopIngest, err := storageManager.RabbitMQ.StartConsumer(cfg.RabbitMQ.IngestQueue,
		prefetch, ingestPipeline.MessageHandler(0))
	if err != nil {
		glog.Fatalf("启动入库消费者失败: %v", err)
	}
	defer close(stopIngest)
	stopRank, err := storageManager.RabbitMQ.StartConsumer(cfg.RabbitMQ.RankRequestQueue,
		prefetch, rankWorker.MessageHandler(0))
	if err != nil {
		glog.Fatalf("启动评估消费者失败: %v", err)
	}
	defer close(stopRank)
	glog.Info("消息消费者已启动")

	handlers := &router.Handlers{
		Upload: handler.NewUploadHandler(storageManager.MinIO, storageManager.MySQL,
			storageManager.RabbitMQ, cfg.RabbitMQ.IngestExchange, cfg.RabbitMQ.ResumeUploadedKey, log),
		Job: handler.NewJobHandler(storageManager.MySQL, jdProcessor, log),
		Rank: handler.NewRankHandler(orchestrator, storageManager.RabbitMQ,
			storageManager.Redis, storageManager.MySQL,
			cfg.RabbitMQ.RankEventsExchange, cfg.RabbitMQ.RankRequestedKey, cfg.Ranker.DefaultMode, log),
		Chat: handler.NewChatHandler(qaAgent, log),
	}

	serverOpts := []hertzconfig.Option{
		server.WithHostPorts(cfg.Server.Address),
		server.WithHandleMethodNotAllowed(true),
	}
	var h *server.Hertz
	if cfg.Tracing.Enabled {
		tracer, tracerCfg := hertztracing.NewServerTracer()
		h = server.New(append(serverOpts, tracer)...)
		h.Use(hertztracing.ServerMiddleware(tracerCfg))
	} else {
		h = server.New(serverOpts...)
	}

	router.RegisterRoutes(h, &cfg.Server, handlers)
	glog.Infof("HTTP服务器启动中，监听地址: %s", cfg.Server.Address)

	go func() {
		if err := h.Run(); err != nil {
			glog.Fatalf("启动HTTP服务器失败: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	glog.Info("接收到终止信号，正在优雅退出...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := h.Shutdown(shutdownCtx); err != nil {
		glog.Errorf("服务器关闭失败: %v", err)
	}
	glog.Info("优雅退出完成")
}
