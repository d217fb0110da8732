package vulcan

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/wzshiming/ctc"
)

type templateFile struct {
	filename string
	content  string
}

func (v *Vulcan) buildInitCommand() *cobra.Command {
	return &cobra.Command{
		Use:           "init",
		Short:         "Initialize a new vulcan project with example files",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return v.runInit()
		},
	}
}

func (v *Vulcan) runInit() error {
	files := []templateFile{
		{filename: "vulcan.yaml", content: configTemplate},
		{filename: "packages/pkg.yml", content: defaultsTemplate},
		{filename: "packages/zlib/pkg.yml", content: zlibTemplate},
		{filename: "packages/hello/pkg.yml", content: helloTemplate},
	}

	// Compute max filename length for aligned output
	maxLen := 0
	for _, f := range files {
		if len(f.filename) > maxLen {
			maxLen = len(f.filename)
		}
	}

	for _, f := range files {
		padding := strings.Repeat(" ", maxLen-len(f.filename))

		if _, err := os.Stat(f.filename); err == nil {
			fmt.Fprintf(v.stdout, "  %s%s   ..%sskipped%s\n", f.filename, padding, ctc.ForegroundYellow, ctc.Reset)
			continue
		}

		if dir := filepath.Dir(f.filename); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				fmt.Fprintf(v.stdout, "  %s%s   ..%sfailed%s (%s)\n", f.filename, padding, ctc.ForegroundRed, ctc.Reset, err)
				continue
			}
		}

		if err := os.WriteFile(f.filename, []byte(f.content), 0644); err != nil {
			fmt.Fprintf(v.stdout, "  %s%s   ..%sfailed%s (%s)\n", f.filename, padding, ctc.ForegroundRed, ctc.Reset, err)
			continue
		}

		fmt.Fprintf(v.stdout, "  %s%s   ..%screated%s\n", f.filename, padding, ctc.ForegroundGreen, ctc.Reset)
	}

	return nil
}

var configTemplate = `repository: packages

stores:
  staging: .vulcan/staging
  release: .vulcan/release

log_dir: .vulcan/logs
source_cache: .vulcan/sources

database:
  host: localhost
  port: "5432"
  user: vulcan
  password: ${VULCAN_DB_PASSWORD}
  name: vulcan

endpoints:
  - name: builder-1
    addr: builder-1.example.com
    user: build
    key: ~/.ssh/id_ed25519
    max_jobs: 4
`

var defaultsTemplate = `# Defaults inherited by every package below this directory.
version: "1.0.0"

phase_order:
  - unpack
  - build
  - package

phases:
  unpack: |
    tar -C "$VULCAN_SOURCES" -xf "$VULCAN_SOURCES"/*.source
`

var zlibTemplate = `name: zlib
version: "1.3.1"

sources:
  src:
    url: https://zlib.net/zlib-1.3.1.tar.gz
    hash:
      type: sha256
      value: 9a93b2b7dfdac77ceba5a558a580e74667dd6fede4585b91eefb60f03b72df23

phases:
  build: |
    cd "$VULCAN_SOURCES"/zlib-*
    ./configure --prefix=/usr
    make -j"$(nproc)"
  package: |
    cd "$VULCAN_SOURCES"/zlib-*
    make DESTDIR="$PWD/pkg" install
    tar -C pkg -cf "$VULCAN_OUT/zlib-$VULCAN_VERSION.pkg.tar" .
`

var helloTemplate = `name: hello
version: "2.12"

sources:
  src:
    url: https://ftp.gnu.org/gnu/hello/hello-2.12.tar.gz
    hash:
      type: sha256
      value: cf04af86dc085268c5f4470fbae49b18afbc221b78096aab842d934a76bad0ab

dependencies:
  build:
    - zlib

phases:
  build: |
    cd "$VULCAN_SOURCES"/hello-*
    ./configure --prefix=/usr
    make -j"$(nproc)"
  package: |
    cd "$VULCAN_SOURCES"/hello-*
    make DESTDIR="$PWD/pkg" install
    tar -C pkg -cf "$VULCAN_OUT/hello-$VULCAN_VERSION.pkg.tar" .
`
