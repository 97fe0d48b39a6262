package support

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cucumber/godog"

	"github.com/MeKo-Tech/qrvision/cmd/qrvision/cmd"
	"github.com/MeKo-Tech/qrvision/internal/testutil"
)

// commandTimeout bounds one in-process command run.
const commandTimeout = 30 * time.Second

// iRunCommand runs a qrvision command line in-process.
func (testCtx *TestContext) iRunCommand(command string) error {
	command = testCtx.substituteCommandVariables(command)
	testCtx.LastCommand = command

	parts := strings.Fields(command)
	if len(parts) == 0 {
		return errors.New("empty command")
	}
	if parts[0] != "qrvision" {
		return fmt.Errorf("unsupported command %q", parts[0])
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	root := cmd.NewRootCommand()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetIn(strings.NewReader(""))
	root.SetArgs(parts[1:])

	testCtx.LastError = root.ExecuteContext(ctx)
	testCtx.LastStdout = stdout.String()
	testCtx.LastStderr = stderr.String()
	return nil
}

// substituteCommandVariables replaces {server} and {workdir} placeholders.
func (testCtx *TestContext) substituteCommandVariables(command string) string {
	if testCtx.Server != nil {
		command = strings.ReplaceAll(command, "{server}", testCtx.Server.URL)
	}
	return strings.ReplaceAll(command, "{workdir}", testCtx.WorkDir)
}

func (testCtx *TestContext) combinedOutput() string {
	return testCtx.LastStdout + testCtx.LastStderr
}

func (testCtx *TestContext) theCommandShouldSucceed() error {
	if testCtx.LastError != nil {
		return fmt.Errorf("command %q failed: %w\nOutput: %s",
			testCtx.LastCommand, testCtx.LastError, testCtx.combinedOutput())
	}
	return nil
}

func (testCtx *TestContext) theCommandShouldFail() error {
	if testCtx.LastError == nil {
		return fmt.Errorf("command %q succeeded when it should have failed\nOutput: %s",
			testCtx.LastCommand, testCtx.combinedOutput())
	}
	return nil
}

func (testCtx *TestContext) theOutputShouldContain(expected string) error {
	if !strings.Contains(testCtx.combinedOutput(), expected) {
		return fmt.Errorf("output does not contain %q\nActual output: %s", expected, testCtx.combinedOutput())
	}
	return nil
}

func (testCtx *TestContext) theOutputShouldNotContain(unexpected string) error {
	if strings.Contains(testCtx.combinedOutput(), unexpected) {
		return fmt.Errorf("output contains %q\nActual output: %s", unexpected, testCtx.combinedOutput())
	}
	return nil
}

func (testCtx *TestContext) theErrorShouldMention(text string) error {
	if testCtx.LastError == nil {
		return fmt.Errorf("expected an error mentioning %q, got none", text)
	}
	if !strings.Contains(testCtx.LastError.Error(), text) {
		return fmt.Errorf("error %q does not mention %q", testCtx.LastError, text)
	}
	return nil
}

// theOutputShouldBeValidJSON checks that stdout alone is one JSON document.
func (testCtx *TestContext) theOutputShouldBeValidJSON() error {
	var doc any
	if err := json.Unmarshal([]byte(testCtx.LastStdout), &doc); err != nil {
		return fmt.Errorf("output is not valid JSON: %w\nOutput: %s", err, testCtx.LastStdout)
	}
	return nil
}

// theJSONOutputShouldListImages checks the number of image entries in a
// decode JSON report.
func (testCtx *TestContext) theJSONOutputShouldListImages(count int) error {
	var doc struct {
		Images []json.RawMessage `json:"images"`
	}
	if err := json.Unmarshal([]byte(testCtx.LastStdout), &doc); err != nil {
		return fmt.Errorf("output is not a decode report: %w", err)
	}
	if len(doc.Images) != count {
		return fmt.Errorf("expected %d images, got %d", count, len(doc.Images))
	}
	return nil
}

func (testCtx *TestContext) anImageContainingTheQRCode(name, payload string) error {
	frame, _, err := testutil.RenderQRFrame(testutil.DefaultQRConfig(payload))
	if err != nil {
		return err
	}
	return testutil.WritePNG(filepath.Join(testCtx.WorkDir, name), frame)
}

func (testCtx *TestContext) aBlankImage(name string) error {
	return testutil.WritePNG(filepath.Join(testCtx.WorkDir, name), testutil.BlankFrame(64, 64, color.White))
}

func (testCtx *TestContext) aFileWithContent(name string, content *godog.DocString) error {
	path := filepath.Join(testCtx.WorkDir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content.Content), 0o600)
}

func (testCtx *TestContext) theEnvironmentVariableIsSetTo(name, value string) error {
	testCtx.SetEnv(name, testCtx.substituteCommandVariables(value))
	return nil
}

func (testCtx *TestContext) theFileShouldExist(name string) error {
	if !testutil.FileExists(filepath.Join(testCtx.WorkDir, name)) {
		return fmt.Errorf("file %s does not exist", name)
	}
	return nil
}

func (testCtx *TestContext) theFileShouldContain(name, expected string) error {
	data, err := os.ReadFile(filepath.Join(testCtx.WorkDir, name))
	if err != nil {
		return err
	}
	if !strings.Contains(string(data), expected) {
		return fmt.Errorf("file %s does not contain %q", name, expected)
	}
	return nil
}

func (testCtx *TestContext) theDirectoryShouldContainImages(name string, count int) error {
	n, err := testutil.CountImages(filepath.Join(testCtx.WorkDir, name))
	if err != nil {
		return err
	}
	if n != count {
		return fmt.Errorf("directory %s holds %d images, want %d", name, n, count)
	}
	return nil
}

// RegisterCommonSteps registers command, output and fixture steps.
func (testCtx *TestContext) RegisterCommonSteps(sc *godog.ScenarioContext) {
	sc.Step(`^an image "([^"]*)" containing the QR code "([^"]*)"$`, testCtx.anImageContainingTheQRCode)
	sc.Step(`^a blank image "([^"]*)"$`, testCtx.aBlankImage)
	sc.Step(`^a file "([^"]*)" with content:$`, testCtx.aFileWithContent)
	sc.Step(`^the environment variable "([^"]*)" is set to "([^"]*)"$`, testCtx.theEnvironmentVariableIsSetTo)

	sc.Step(`^I run "([^"]*)"$`, testCtx.iRunCommand)
	sc.Step(`^the command should succeed$`, testCtx.theCommandShouldSucceed)
	sc.Step(`^the command should fail$`, testCtx.theCommandShouldFail)

	sc.Step(`^the output should contain "([^"]*)"$`, testCtx.theOutputShouldContain)
	sc.Step(`^the output should not contain "([^"]*)"$`, testCtx.theOutputShouldNotContain)
	sc.Step(`^the output should be valid JSON$`, testCtx.theOutputShouldBeValidJSON)
	sc.Step(`^the JSON output should list (\d+) images?$`, testCtx.theJSONOutputShouldListImages)
	sc.Step(`^the error should mention "([^"]*)"$`, testCtx.theErrorShouldMention)

	sc.Step(`^the file "([^"]*)" should exist$`, testCtx.theFileShouldExist)
	sc.Step(`^the file "([^"]*)" should contain "([^"]*)"$`, testCtx.theFileShouldContain)
	sc.Step(`^the directory "([^"]*)" should contain (\d+) images?$`, testCtx.theDirectoryShouldContainImages)
}
