package integration

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/smartspec/smartspec/tests/common"
)

// TestDashboardRenders drives a headless browser against the embedded
// status dashboard, the one page in the service meant for human eyes
// rather than an API client.
func TestDashboardRenders(t *testing.T) {
	env := common.NewEnv(t, "dashboard_renders")
	if err := env.Start(); err != nil {
		t.Fatalf("start environment: %v", err)
	}
	defer env.Stop()

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(),
		append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("no-sandbox", true),
		)...,
	)
	defer allocCancel()

	ctx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()
	ctx, cancel = context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	var title, body string
	if err := chromedp.Run(ctx,
		chromedp.Navigate(env.BaseURL+"/web/"),
		chromedp.WaitReady("body"),
		chromedp.Title(&title),
		chromedp.Text("main", &body, chromedp.ByQuery),
	); err != nil {
		t.Fatalf("render dashboard: %v", err)
	}

	if !strings.Contains(title, "smartspec-service") {
		t.Errorf("expected page title to mention smartspec-service, got %q", title)
	}
	if !strings.Contains(body, "Pipeline status") {
		t.Errorf("expected dashboard body to describe pipeline status, got %q", body)
	}

	env.SaveJSON("dashboard.json", map[string]string{"title": title, "body": body})
}
