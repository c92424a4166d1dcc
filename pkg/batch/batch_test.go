// Copyright 2025 walteh LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package batch

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	rflog "github.com/walteh/routefix/pkg/log"
	"github.com/walteh/routefix/pkg/rewrite"
)

const (
	routeBefore = `import { NextRequest } from 'next/server';

export const GET = withAuth(
    async (request: NextRequest, auth, context: any) => {
        const { orgId } = context.params;
        return Response.json({ orgId });
    }
);
`
	routeAfter = `import { NextRequest } from 'next/server';

export const GET = withAuth(
    async (request: NextRequest, auth) => {
        // Extract orgId from URL path
        const url = new URL(request.url);
        const pathParts = url.pathname.split('/');
        const orgId = pathParts[pathParts.length - 1];
        return Response.json({ orgId });
    }
);
`
)

func init() {
	color.NoColor = true
}

type fixture struct {
	root    string
	out     *bytes.Buffer
	console *rflog.Console
	ctx     context.Context
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zerolog.New(zerolog.NewTestWriter(t)).Level(zerolog.DebugLevel)
	out := &bytes.Buffer{}
	return &fixture{
		root:    t.TempDir(),
		out:     out,
		console: rflog.New(out),
		ctx:     logger.WithContext(context.Background()),
	}
}

func (f *fixture) write(t *testing.T, rel, content string) {
	t.Helper()
	p := filepath.Join(f.root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func (f *fixture) read(t *testing.T, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(f.root, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(data)
}

func (f *fixture) runner(t *testing.T, opts Options) *Runner {
	t.Helper()
	rw, err := rewrite.New(rewrite.DefaultRules())
	require.NoError(t, err)
	opts.Root = f.root
	r, err := NewRunner(rw, f.console, opts)
	require.NoError(t, err)
	return r
}

func (f *fixture) lines() []string {
	return strings.Split(strings.TrimSuffix(f.out.String(), "\n"), "\n")
}

func TestRunner_Run(t *testing.T) {
	f := newFixture(t)
	f.write(t, "src/app/api/v1/organizations/[orgId]/route.ts", routeBefore)
	f.write(t, "src/app/api/v1/users/[userId]/route.ts", "export const x = 1;\n")

	targets := []string{
		`src\app\api\v1\organizations\[orgId]\route.ts`,
		`src\app\api\v1\organizations\[orgId]\members\route.ts`,
		`src\app\api\v1\users\[userId]\route.ts`,
	}

	err := f.runner(t, Options{}).Run(f.ctx, targets)
	require.NoError(t, err)

	assert.Equal(t, []string{
		`Fixing: src\app\api\v1\organizations\[orgId]\route.ts`,
		`✓ Fixed: src\app\api\v1\organizations\[orgId]\route.ts`,
		`✗ Not found: src\app\api\v1\organizations\[orgId]\members\route.ts`,
		`Fixing: src\app\api\v1\users\[userId]\route.ts`,
		`✓ Fixed: src\app\api\v1\users\[userId]\route.ts`,
		"",
		"All files processed!",
	}, f.lines())

	assert.Equal(t, routeAfter, f.read(t, "src/app/api/v1/organizations/[orgId]/route.ts"))
	assert.Equal(t, "export const x = 1;\n", f.read(t, "src/app/api/v1/users/[userId]/route.ts"), "non-matching file is written back unchanged")

	_, err = os.Stat(filepath.Join(f.root, "src", "app", "api", "v1", "organizations", "[orgId]", "members", "route.ts"))
	assert.ErrorIs(t, err, os.ErrNotExist, "missing target must not be created")

	assert.Equal(t, rflog.Counts{Fixed: 1, Unchanged: 1, NotFound: 1}, f.console.Counts())
}

func TestRunner_Idempotent(t *testing.T) {
	f := newFixture(t)
	f.write(t, "route.ts", routeBefore)

	r := f.runner(t, Options{})
	require.NoError(t, r.Run(f.ctx, []string{"route.ts"}))
	first := f.read(t, "route.ts")

	require.NoError(t, r.Run(f.ctx, []string{"route.ts"}))
	assert.Equal(t, first, f.read(t, "route.ts"))
	assert.Equal(t, routeAfter, first)
}

func TestRunner_KeepsPermissions(t *testing.T) {
	f := newFixture(t)
	f.write(t, "route.ts", routeBefore)
	p := filepath.Join(f.root, "route.ts")
	require.NoError(t, os.Chmod(p, 0o600))

	require.NoError(t, f.runner(t, Options{}).Run(f.ctx, []string{"route.ts"}))

	info, err := os.Stat(p)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestRunner_DryRun(t *testing.T) {
	f := newFixture(t)
	f.write(t, "route.ts", routeBefore)

	require.NoError(t, f.runner(t, Options{DryRun: true}).Run(f.ctx, []string{"route.ts"}))

	assert.Equal(t, routeBefore, f.read(t, "route.ts"), "dry run must not write")

	out := f.out.String()
	assert.Contains(t, out, "Fixing: route.ts\n")
	assert.Contains(t, out, "    -    async (request: NextRequest, auth, context: any) => {\n")
	assert.Contains(t, out, "    +    async (request: NextRequest, auth) => {\n")
	assert.Contains(t, out, "    +        const url = new URL(request.url);\n")
	assert.Contains(t, out, "✓ Fixed: route.ts\n")
	assert.True(t, strings.HasSuffix(out, "\nAll files processed!\n"))
}

func TestRunner_ReadFailureStopsRun(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.MkdirAll(filepath.Join(f.root, "dir.ts"), 0o755))
	f.write(t, "later.ts", routeBefore)

	err := f.runner(t, Options{}).Run(f.ctx, []string{"dir.ts", "later.ts"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading dir.ts")

	assert.Equal(t, []string{"Fixing: dir.ts"}, f.lines())
	assert.Equal(t, routeBefore, f.read(t, "later.ts"), "files after the failure are untouched")
}

func TestRunner_InvalidUTF8StopsRun(t *testing.T) {
	f := newFixture(t)
	bad := "\xff\xfe bad " + routeBefore
	f.write(t, "bad.ts", bad)
	f.write(t, "later.ts", routeBefore)

	err := f.runner(t, Options{}).Run(f.ctx, []string{"bad.ts", "later.ts"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidEncoding)
	assert.Contains(t, err.Error(), "decoding bad.ts as UTF-8")

	assert.Equal(t, []string{"Fixing: bad.ts"}, f.lines())
	assert.Equal(t, bad, f.read(t, "bad.ts"), "badly encoded file must not be rewritten")
	assert.Equal(t, routeBefore, f.read(t, "later.ts"), "files after the failure are untouched")
}

func TestRunner_Cancelled(t *testing.T) {
	f := newFixture(t)
	f.write(t, "route.ts", routeBefore)

	ctx, cancel := context.WithCancel(f.ctx)
	cancel()

	err := f.runner(t, Options{}).Run(ctx, []string{"route.ts"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, f.out.String())
	assert.Equal(t, routeBefore, f.read(t, "route.ts"))
}

func TestRunner_ParallelMatchesSequential(t *testing.T) {
	defer goleak.VerifyNone(t)

	var targets []string
	seq := newFixture(t)
	par := newFixture(t)
	for i := 0; i < 24; i++ {
		name := fmt.Sprintf("routes/%02d/route.ts", i)
		targets = append(targets, name)
		if i%5 == 3 {
			continue
		}
		seq.write(t, name, routeBefore)
		par.write(t, name, routeBefore)
	}

	require.NoError(t, seq.runner(t, Options{}).Run(seq.ctx, targets))
	require.NoError(t, par.runner(t, Options{Parallel: 4}).Run(par.ctx, targets))

	assert.Equal(t, seq.out.String(), par.out.String(), "parallel output should keep list order")
	for i, name := range targets {
		if i%5 == 3 {
			continue
		}
		assert.Equal(t, routeAfter, par.read(t, name))
	}
	assert.Equal(t, seq.console.Counts(), par.console.Counts())
}

func TestRunner_ParallelFailure(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newFixture(t)
	f.write(t, "a.ts", routeBefore)
	require.NoError(t, os.MkdirAll(filepath.Join(f.root, "b.ts"), 0o755))
	f.write(t, "c.ts", routeBefore)

	err := f.runner(t, Options{Parallel: 3}).Run(f.ctx, []string{"a.ts", "b.ts", "c.ts"})
	require.Error(t, err)
	assert.NotContains(t, f.out.String(), "All files processed!")
	assert.NotContains(t, f.out.String(), "c.ts", "events after the failed file are not replayed")
}

func TestNewRunner(t *testing.T) {
	rw, err := rewrite.New(rewrite.DefaultRules())
	require.NoError(t, err)

	_, err = NewRunner(nil, rflog.New(&bytes.Buffer{}), Options{})
	assert.ErrorContains(t, err, "rewriter is required")

	_, err = NewRunner(rw, nil, Options{})
	assert.ErrorContains(t, err, "reporter is required")
}

func TestUnreportedWrites(t *testing.T) {
	targets := []string{"a.ts", "b.ts", "c.ts", "d.ts", "e.ts"}
	recorders := make([]*recorder, len(targets))
	for i := range recorders {
		recorders[i] = &recorder{}
	}

	ctx := context.Background()
	recorders[0].Fixed(ctx, "a.ts", 1, true)
	recorders[2].Fixed(ctx, "c.ts", 2, true)
	recorders[3].NotFound(ctx, "d.ts")
	recorders[4].Fixing(ctx, "e.ts")
	recorders[4].Fixed(ctx, "e.ts", 0, false)

	assert.Equal(t, []string{"c.ts", "e.ts"}, unreportedWrites(targets, recorders, 2))
	assert.Empty(t, unreportedWrites(targets, recorders, len(targets)))
}

func TestRunner_ParallelFailureWarnsAboutUnreportedWrites(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newFixture(t)
	logs := &bytes.Buffer{}
	f.ctx = zerolog.New(logs).Level(zerolog.WarnLevel).WithContext(context.Background())

	require.NoError(t, os.MkdirAll(filepath.Join(f.root, "a.ts"), 0o755))
	f.write(t, "b.ts", routeBefore)

	err := f.runner(t, Options{Parallel: 2}).Run(f.ctx, []string{"a.ts", "b.ts"})
	require.Error(t, err)
	assert.NotContains(t, f.out.String(), "b.ts", "b.ts comes after the failed file")

	if f.read(t, "b.ts") == routeAfter {
		assert.Contains(t, logs.String(), `"file":"b.ts"`, "a rewritten but unreported file should be logged")
	} else {
		assert.NotContains(t, logs.String(), `"file":"b.ts"`)
	}
}
