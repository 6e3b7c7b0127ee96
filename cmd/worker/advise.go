package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/stylesync/stylesync-backend/config"
	"github.com/stylesync/stylesync-backend/internal/bootstrap"
	"github.com/stylesync/stylesync-backend/internal/color_advice/domain"
)

// RunAdvise runs one request through a local pipeline (in-process cache, no
// asset store) and prints the response as JSON.
func RunAdvise(args []string) {
	if len(args) < 1 {
		panic("usage: advise <#RRGGBB|imagePath> [targetRole]")
	}
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	pipeline, err := bootstrap.BuildPipeline(cfg, nil, nil)
	if err != nil {
		panic(err)
	}

	opts := domain.DefaultOptions()
	if len(args) > 1 {
		opts.TargetRole = domain.TargetRole(strings.ToLower(args[1]))
	}

	var req *domain.Request
	if strings.HasPrefix(args[0], "#") {
		req = domain.NewDirectColor(args[0], opts)
	} else {
		data, err := os.ReadFile(args[0])
		if err != nil {
			panic(err)
		}
		req = domain.NewImageUpload(data, http.DetectContentType(data), opts)
	}

	resp, err := pipeline.Orchestrator.Process(context.Background(), req)
	if err != nil {
		panic(err)
	}
	out, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		panic(err)
	}
	fmt.Println(string(out))
	if resp.Meta.Degraded {
		fmt.Fprintf(os.Stderr, "degraded: %s\n", resp.Meta.DegradationReason)
	}
}
