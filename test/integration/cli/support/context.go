package support

import (
	"errors"
	"fmt"
	"net/http/httptest"
	"os"

	"github.com/MeKo-Tech/qrvision/internal/host"
)

// robotEnv are the variables the robot commands read; scenarios start
// without them.
var robotEnv = []string{
	"ROBOT_ADDRESS", "ROBOT_API_KEY", "ROBOT_API_KEY_ID",
	"CAMERA_NAME", "VISION_NAME", "PART_ID",
}

// TestContext holds the state of one scenario.
type TestContext struct {
	// Command execution state
	LastCommand string
	LastStdout  string
	LastStderr  string
	LastError   error

	// Test environment
	WorkDir     string
	originalDir string
	savedEnv    map[string]*string

	// In-process host serving vision resources or uploads
	Server  *httptest.Server
	Host    *host.Host
	DataDir string

	// HTTP response state
	LastHTTPStatusCode int
	LastHTTPResponse   string
}

// NewTestContext creates a scenario context rooted in a fresh temporary
// working directory.
func NewTestContext() (*TestContext, error) {
	originalDir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	workDir, err := os.MkdirTemp("", "qrvision-cli-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	if err := os.Chdir(workDir); err != nil {
		return nil, fmt.Errorf("failed to enter %s: %w", workDir, err)
	}

	testCtx := &TestContext{
		WorkDir:     workDir,
		originalDir: originalDir,
		savedEnv:    map[string]*string{},
	}
	for _, name := range robotEnv {
		testCtx.SetEnv(name, "")
	}
	return testCtx, nil
}

// SetEnv sets an environment variable until Cleanup.
func (testCtx *TestContext) SetEnv(name, value string) {
	if _, saved := testCtx.savedEnv[name]; !saved {
		if old, ok := os.LookupEnv(name); ok {
			testCtx.savedEnv[name] = &old
		} else {
			testCtx.savedEnv[name] = nil
		}
	}
	_ = os.Setenv(name, value)
}

// Cleanup stops servers, restores the environment and removes the working
// directory.
func (testCtx *TestContext) Cleanup() error {
	var errs []error

	testCtx.stopServer()

	for name, old := range testCtx.savedEnv {
		if old == nil {
			_ = os.Unsetenv(name)
			continue
		}
		_ = os.Setenv(name, *old)
	}

	if err := os.Chdir(testCtx.originalDir); err != nil {
		errs = append(errs, fmt.Errorf("failed to restore working directory: %w", err))
	}
	if err := os.RemoveAll(testCtx.WorkDir); err != nil {
		errs = append(errs, fmt.Errorf("failed to remove %s: %w", testCtx.WorkDir, err))
	}
	return errors.Join(errs...)
}
