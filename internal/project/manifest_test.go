package project

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeManifest(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "project.json"), []byte(content), 0o644))
}

func TestLoadProject_BasicFields(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `{
		"id": "app.widget",
		"type": "application",
		"value": {
			"language": "c",
			"version": "1.2.3",
			"public": true,
			"use": ["lib.core", "lib.util"]
		}
	}`)

	p, err := LoadProject(dir)
	require.NoError(t, err)
	assert.Equal(t, "app.widget", p.ID)
	assert.Equal(t, TypeApplication, p.Type)
	assert.Equal(t, "c", p.Language)
	assert.Equal(t, "lang.c", p.LanguageDriverID)
	assert.Equal(t, "1.2.3", p.Version)
	assert.True(t, p.Public)
	assert.Equal(t, []string{"lib.core", "lib.util"}, p.Use)
}

func TestLoadProject_LegacyTypeAliases(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `{"id": "app.widget", "type": "executable"}`)
	p, err := LoadProject(dir)
	require.NoError(t, err)
	assert.Equal(t, TypeApplication, p.Type)

	dir2 := t.TempDir()
	writeManifest(t, dir2, `{"id": "lib.widget", "type": "library"}`)
	p2, err := LoadProject(dir2)
	require.NoError(t, err)
	assert.Equal(t, TypePackage, p2.Type)
}

func TestLoadProject_TolerantOfComments(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `{
		// leading comment
		"id": "app.widget", /* inline */ "type": "tool"
		// trailing comment
	}`)
	p, err := LoadProject(dir)
	require.NoError(t, err)
	assert.Equal(t, "app.widget", p.ID)
	assert.Equal(t, TypeTool, p.Type)
}

func TestLoadProject_MissingIDRejected(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `{"type": "tool"}`)
	_, err := LoadProject(dir)
	assert.Error(t, err)
}

func TestLoadProject_InvalidIDRejected(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `{"id": "2bad"}`)
	_, err := LoadProject(dir)
	assert.Error(t, err)
}

func TestLoadProject_UnknownTypeRejected(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `{"id": "app.widget", "type": "spaceship"}`)
	_, err := LoadProject(dir)
	assert.Error(t, err)
}

func TestLoadProject_DriverConfigBlocksRouteToDrivers(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `{
		"id": "app.widget",
		"lang.c": {"std": "c11"}
	}`)
	p, err := LoadProject(dir)
	require.NoError(t, err)
	require.NotNil(t, p.Binding("lang.c"))
	assert.Equal(t, "c11", p.Drivers["lang.c"].Raw["std"])
}

func TestLoadProject_DependeeBlockCaptured(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `{
		"id": "lib.core",
		"dependee": {"flags": ["-DCORE"]}
	}`)
	p, err := LoadProject(dir)
	require.NoError(t, err)
	require.NotNil(t, p.Dependee)
	assert.Contains(t, p.Dependee, "flags")
}

func TestLoadProject_DefaultSourcesAndIncludes(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `{"id": "app.widget"}`)
	p, err := LoadProject(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"src"}, p.Sources)
	assert.Equal(t, []string{"include"}, p.Includes)
}

func TestLoadProject_CustomSourcesOverrideDefault(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `{
		"id": "app.widget",
		"value": {"sources": ["src", "gen"]}
	}`)
	p, err := LoadProject(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"src", "gen"}, p.Sources)
}
