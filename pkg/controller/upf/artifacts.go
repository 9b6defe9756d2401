package upf

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"path"
	"text/template"
)

//go:embed templates/upf.json.tmpl
var upfConfigTemplate string

//go:embed templates/bessd-poststart.sh
var poststartScript string

var configTemplate = template.Must(template.New(configFileName).Parse(upfConfigTemplate))

// renderUPFConfig produces the bessd configuration payload. Content is a
// pure function of the unit hostname and the configured datapath mode.
func renderUPFConfig(hostname, mode string) ([]byte, error) {
	var buf bytes.Buffer
	err := configTemplate.Execute(&buf, struct {
		Hostname string
		Mode     string
	}{Hostname: hostname, Mode: mode})
	if err != nil {
		return nil, fmt.Errorf("failed to render %s: %w", configFileName, err)
	}
	return buf.Bytes(), nil
}

func (r *UPFReconciler) writeConfigFile(ctx context.Context) error {
	content, err := renderUPFConfig(r.Env.Hostname(), r.Config.Mode)
	if err != nil {
		return err
	}
	target := path.Join(bessdConfigDir, configFileName)
	if err := r.container(BessdContainerName).Push(ctx, target, content, 0o644); err != nil {
		return err
	}
	r.Logger.Info("Pushed config file", "path", target)
	return nil
}

func (r *UPFReconciler) writePoststartScript(ctx context.Context) error {
	target := path.Join(bessdConfigDir, poststartFileName)
	if err := r.container(BessdContainerName).Push(ctx, target, []byte(poststartScript), 0o755); err != nil {
		return err
	}
	r.Logger.Info("Pushed poststart script", "path", target)
	return nil
}

func (r *UPFReconciler) bessdConfigFileWritten(ctx context.Context) (bool, error) {
	return r.container(BessdContainerName).Exists(ctx, path.Join(bessdConfigDir, configFileName))
}

func (r *UPFReconciler) poststartScriptWritten(ctx context.Context) (bool, error) {
	return r.container(BessdContainerName).Exists(ctx, path.Join(bessdConfigDir, poststartFileName))
}

func (r *UPFReconciler) pfcpAgentConfigFileWritten(ctx context.Context) (bool, error) {
	return r.container(PFCPAgentContainerName).Exists(ctx, path.Join(pfcpAgentConfigDir, configFileName))
}
