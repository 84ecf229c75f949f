package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/joho/godotenv"

	"github.com/zhouzirui/emergency-hub/backend/internal/analysis/category"
	"github.com/zhouzirui/emergency-hub/backend/internal/config"
	"github.com/zhouzirui/emergency-hub/backend/internal/model/facility"
	"github.com/zhouzirui/emergency-hub/backend/internal/service/location"
	"github.com/zhouzirui/emergency-hub/backend/internal/service/routing"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] 无法加载 .env，改用系统环境变量: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("配置加载失败: %v", err)
	}

	mode := flag.String("mode", "", "检查模式: classify 或 nearby")
	text := flag.String("text", "", "classify 模式下待分类的求助文本")
	useLLM := flag.Bool("llm", false, "classify 模式下启用大模型分类（需要配置模型凭证）")
	cat := flag.String("category", "medical", "nearby 模式下的设施类别")
	area := flag.String("area", "", "nearby 模式下的地名，例如 Clifton")
	lat := flag.Float64("lat", 0, "nearby 模式下的纬度")
	lon := flag.Float64("lon", 0, "nearby 模式下的经度")
	radius := flag.Float64("radius", 0, "检索半径(km)，默认使用配置中的 SEARCH_RADIUS_KM")
	limit := flag.Int("limit", 5, "nearby 模式下最多输出的设施数量")
	timeout := flag.Duration("timeout", 30*time.Second, "请求超时时间")

	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	switch *mode {
	case "classify":
		runClassify(ctx, cfg, *text, *useLLM)
	case "nearby":
		runNearby(cfg, *cat, *area, *lat, *lon, *radius, *limit)
	default:
		flag.Usage()
		log.Fatal("请通过 -mode=classify 或 -mode=nearby 指定检查模式")
	}
}

func runClassify(ctx context.Context, cfg *config.Config, text string, useLLM bool) {
	if strings.TrimSpace(text) == "" {
		log.Fatal("classify 模式需要通过 -text 提供文本")
	}

	router := category.NewRouter(nil)
	if cfg.Routing.TermsFile != "" {
		terms, err := config.LoadTerms(cfg.Routing.TermsFile)
		if err != nil {
			log.Fatalf("词表加载失败: %v", err)
		}
		router.Replace(terms)
	}

	var chatModel model.ChatModel
	if useLLM {
		if !cfg.AI.Enabled() {
			log.Fatal("未配置模型凭证，无法使用 -llm")
		}
		m, err := cfg.AI.NewChatModel(ctx)
		if err != nil {
			log.Fatalf("模型初始化失败: %v", err)
		}
		chatModel = m
	}

	svc, err := routing.NewService(ctx, chatModel, routing.Config{Enabled: useLLM, HistoryLimit: cfg.AI.RouterHistoryLimit}, router)
	if err != nil {
		log.Fatalf("分类服务初始化失败: %v", err)
	}

	log.Printf("开始分类: llm=%v text=%q", svc.Enabled(), text)
	result := svc.Classify(ctx, nil, text)
	printJSON(result)
}

func runNearby(cfg *config.Config, rawCategory, area string, lat, lon, radius float64, limit int) {
	cat, ok := facility.ParseCategory(rawCategory)
	if !ok || cat == facility.General {
		log.Fatalf("未知的设施类别: %s", rawCategory)
	}

	if area != "" {
		place, found := location.Geocode(area)
		if !found {
			log.Fatalf("无法识别的地名: %s", area)
		}
		lat, lon = place.Latitude, place.Longitude
		log.Printf("地名解析: %s -> (%.4f, %.4f)", place.Address, lat, lon)
	}
	if radius <= 0 {
		radius = cfg.Facility.DefaultRadius
	}

	var (
		items []facility.Facility
		err   error
	)
	if cfg.Facility.DataDir != "" {
		items, err = facility.LoadDir(cfg.Facility.DataDir)
	} else {
		items, err = facility.LoadEmbedded()
	}
	if err != nil {
		log.Fatalf("设施数据加载失败: %v", err)
	}

	found, err := facility.NewMemoryStore(items).FindNearby(cat, lat, lon, radius)
	if err != nil {
		log.Fatalf("检索失败: %v", err)
	}
	if limit > 0 && len(found) > limit {
		found = found[:limit]
	}

	log.Printf("在 %.1fkm 内找到 %d 个 %s 设施", radius, len(found), cat)
	for i, item := range found {
		fmt.Printf("%d. %s (%.1f km) %s\n", i+1, item.Name, item.DistanceKM, item.Address)
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Fatalf("输出失败: %v", err)
	}
}
