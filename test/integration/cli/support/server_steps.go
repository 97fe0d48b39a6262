package support

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"

	"github.com/cucumber/godog"

	"github.com/MeKo-Tech/qrvision/internal/config"
	"github.com/MeKo-Tech/qrvision/internal/host"
	"github.com/MeKo-Tech/qrvision/internal/server"
	"github.com/MeKo-Tech/qrvision/internal/testutil"
	"github.com/MeKo-Tech/qrvision/internal/vision"
)

// startServer hosts resources behind an in-process HTTP server.
func (testCtx *TestContext) startServer(resources host.Resources, apiKey, apiKeyID string) error {
	if testCtx.Server != nil {
		return fmt.Errorf("a server is already running at %s", testCtx.Server.URL)
	}
	logger := slog.New(slog.DiscardHandler)

	h, err := host.New(context.Background(), resources, host.Options{Logger: logger})
	if err != nil {
		return fmt.Errorf("failed to build resources: %w", err)
	}
	testCtx.Host = h
	testCtx.DataDir = filepath.Join(testCtx.WorkDir, "server-data")

	srv := server.NewServer(server.Config{
		DataDir:        testCtx.DataDir,
		APIKey:         apiKey,
		APIKeyID:       apiKeyID,
		OverlayEnabled: true,
		Version:        "integration",
		Logger:         logger,
	}, h)
	testCtx.Server = httptest.NewServer(srv.Handler())
	return nil
}

func (testCtx *TestContext) stopServer() {
	if testCtx.Server != nil {
		testCtx.Server.Close()
		testCtx.Server = nil
	}
	if testCtx.Host != nil {
		_ = testCtx.Host.Close(context.Background())
		testCtx.Host = nil
	}
}

// aVisionServerHostingTheImage serves camera-1 from a file and a QR service
// vision-1 that only logs URLs.
func (testCtx *TestContext) aVisionServerHostingTheImage(name string) error {
	cfg := config.DefaultConfig()
	cfg.Trigger.Mode = vision.TriggerLog

	return testCtx.startServer(host.Resources{
		Cameras: []host.CameraConfig{{
			Name: "camera-1",
			Type: host.CameraTypeFile,
			Path: filepath.Join(testCtx.WorkDir, name),
		}},
		Services: []host.ServiceConfig{{
			Name:       "vision-1",
			Model:      vision.QRModel.String(),
			Attributes: cfg.QRAttributes("camera-1"),
			DependsOn:  []string{"camera-1"},
		}},
	}, "", "")
}

func (testCtx *TestContext) anUploadServerWithAPIKey(apiKey, apiKeyID string) error {
	return testCtx.startServer(host.Resources{}, apiKey, apiKeyID)
}

func (testCtx *TestContext) recordResponse(resp *http.Response) error {
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	testCtx.LastHTTPStatusCode = resp.StatusCode
	testCtx.LastHTTPResponse = string(body)
	return nil
}

func (testCtx *TestContext) iSendAGETRequestTo(path string) error {
	if testCtx.Server == nil {
		return fmt.Errorf("no server is running")
	}
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, testCtx.Server.URL+path, nil)
	if err != nil {
		return err
	}
	resp, err := testCtx.Server.Client().Do(req)
	if err != nil {
		return err
	}
	return testCtx.recordResponse(resp)
}

func (testCtx *TestContext) iPostTheImageTo(name, path string) error {
	if testCtx.Server == nil {
		return fmt.Errorf("no server is running")
	}
	data, err := os.ReadFile(filepath.Join(testCtx.WorkDir, name))
	if err != nil {
		return err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("image", name)
	if err != nil {
		return err
	}
	if _, err := fw.Write(data); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, testCtx.Server.URL+path, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := testCtx.Server.Client().Do(req)
	if err != nil {
		return err
	}
	return testCtx.recordResponse(resp)
}

func (testCtx *TestContext) theResponseStatusShouldBe(status int) error {
	if testCtx.LastHTTPStatusCode != status {
		return fmt.Errorf("expected status %d, got %d\nBody: %s", status, testCtx.LastHTTPStatusCode, testCtx.LastHTTPResponse)
	}
	return nil
}

func (testCtx *TestContext) theResponseShouldContain(text string) error {
	if !strings.Contains(testCtx.LastHTTPResponse, text) {
		return fmt.Errorf("response does not contain %q\nBody: %s", text, testCtx.LastHTTPResponse)
	}
	return nil
}

// theServerShouldHaveStoredFilesForPart counts stored files, ignoring their
// metadata sidecars.
func (testCtx *TestContext) theServerShouldHaveStoredFilesForPart(count int, partID string) error {
	stored, err := testutil.CountFiles(filepath.Join(testCtx.DataDir, partID), ".json")
	if err != nil {
		return err
	}
	if stored != count {
		return fmt.Errorf("part %s holds %d files, want %d", partID, stored, count)
	}
	return nil
}

// RegisterServerSteps registers steps that run an in-process host.
func (testCtx *TestContext) RegisterServerSteps(sc *godog.ScenarioContext) {
	sc.Step(`^a vision server hosting the image "([^"]*)"$`, testCtx.aVisionServerHostingTheImage)
	sc.Step(`^an upload server with API key "([^"]*)" and key ID "([^"]*)"$`, testCtx.anUploadServerWithAPIKey)
	sc.Step(`^I send a GET request to "([^"]*)"$`, testCtx.iSendAGETRequestTo)
	sc.Step(`^I post the image "([^"]*)" to "([^"]*)"$`, testCtx.iPostTheImageTo)
	sc.Step(`^the response status should be (\d+)$`, testCtx.theResponseStatusShouldBe)
	sc.Step(`^the response should contain "([^"]*)"$`, testCtx.theResponseShouldContain)
	sc.Step(`^the server should have stored (\d+) files? for part "([^"]*)"$`, testCtx.theServerShouldHaveStoredFilesForPart)
}
