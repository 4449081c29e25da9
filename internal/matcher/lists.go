package matcher

/*
greenlink — finds URLs and domains in source code and checks them for green hosting
Copyright (C) 2025  Pepijn van der Stap <rxtls@vanderstap.info>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU Affero General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU Affero General Public License for more details.

You should have received a copy of the GNU Affero General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Lookup tables used by the bare-domain suppression rules and by Acceptable.
// They are plain sets: membership is the only operation.

// identifierTokens holds first labels that almost always mean code, not a host:
// receivers, module objects and language built-ins.
var identifierTokens = toSet(
	// JavaScript / TypeScript
	"this", "self", "window", "document", "console", "require", "module", "exports",
	"app", "config", "process", "global", "globalthis", "navigator", "location",
	"history", "localstorage", "sessionstorage", "math", "json", "object", "array",
	"string", "number", "boolean", "promise", "date", "regexp", "error", "map", "set",
	"symbol", "reflect", "proxy", "intl", "buffer", "path", "fs", "os", "http", "https",
	"url", "util", "crypto", "events", "stream", "react", "vue", "angular", "jquery",
	"lodash", "axios", "express", "router", "req", "res", "request", "response", "ctx",
	"context", "event", "err", "logger", "log", "obj", "options", "opts", "props",
	"state", "store", "db", "cache", "client", "server", "vscode", "theme", "style",
	"styles", "item", "el", "node", "parent", "child", "target", "element", "super",
	"user", "data", "result", "value", "args", "params", "query", "body", "headers",
	"env",
	// Go / Python / Java-ish
	"fmt", "strings", "errors", "time", "sync", "io", "bytes", "sys", "np", "pd", "plt",
	"re", "datetime", "django", "flask", "settings", "system", "java", "javax",
	"android", "androidx", "kotlin", "scala", "com", "org", "net",
)

// memberTokens are property and method names that collide with real TLDs or
// commonly appear as the right-hand side of a two-part identifier.
var memberTokens = toSet(
	"name", "zip", "mov", "menu", "style", "data", "type", "id", "value", "length",
	"run", "test", "new", "top", "fit", "live", "show", "click", "call", "bind",
	"apply", "prototype", "push", "then", "catch", "get", "save", "play", "watch",
	"width", "height", "src", "events",
)

// fileExtensions are last labels that mark a file name rather than a domain.
var fileExtensions = toSet(
	"json", "js", "mjs", "cjs", "ts", "tsx", "jsx", "md", "mdx", "yml", "yaml", "toml",
	"ini", "env", "lock", "html", "htm", "css", "scss", "sass", "less", "txt", "log",
	"csv", "xml", "svg", "png", "jpg", "jpeg", "gif", "webp", "ico", "pdf", "zip", "gz",
	"tar", "mov", "mp4", "mp3", "wav", "go", "mod", "sum", "py", "pyc", "rb", "rs",
	"java", "class", "jar", "kt", "swift", "c", "h", "cpp", "hpp", "cs", "php", "sh",
	"bash", "zsh", "ps1", "bat", "exe", "dll", "so", "map", "vue", "svelte", "astro",
	"sql", "db", "sqlite", "wasm", "proto", "gradle", "properties", "cfg", "conf",
	"test", "spec", "min", "d",
)

// configFilenames are whole names rejected even when their last label would pass.
var configFilenames = toSet(
	"package.json", "package-lock.json", "tsconfig.json", "jsconfig.json",
	"composer.json", "docker-compose.yml", "cargo.toml", "go.mod", "go.sum",
	"readme.md", "changelog.md", "license.md", "index.html", "index.js", "index.ts",
	"webpack.config.js", "vite.config.ts", "babel.config.js", "jest.config.js",
	"eslint.config.js", "next.config.js", "nuxt.config.ts", "setup.py",
	"requirements.txt", "pyproject.toml", "pom.xml", "build.gradle", "makefile.am",
)

// knownTLDs is the allowlist of top-level domains accepted as the final label.
var knownTLDs = toSet(
	// generic
	"com", "net", "org", "edu", "gov", "mil", "int", "info", "biz", "name", "pro",
	"mobi", "asia", "travel", "museum", "aero", "coop", "jobs", "tel", "cat",
	// popular new gTLDs
	"io", "co", "ai", "app", "dev", "me", "xyz", "online", "site", "tech", "store",
	"cloud", "page", "blog", "news", "shop", "wiki", "tv", "fm", "ly", "gg", "to", "cc",
	"ws", "la", "li", "design", "digital", "earth", "eco", "energy", "green", "global",
	"host", "hosting", "network", "solar", "space", "systems", "website", "works",
	"zone", "world", "agency", "link", "email", "codes", "tools", "software", "studio",
	"club", "social", "media", "group", "company", "today", "life", "land", "garden",
	"education", "foundation",
	// country codes
	"us", "uk", "de", "fr", "nl", "eu", "ca", "au", "jp", "cn", "in", "br", "ru", "es",
	"it", "se", "no", "fi", "dk", "ch", "at", "be", "pl", "cz", "pt", "ie", "nz", "za",
	"mx", "ar", "kr", "tw", "hk", "sg", "my", "id", "th", "vn", "tr", "gr", "il", "ro",
	"hu", "sk", "bg", "hr", "si", "lt", "lv", "ee", "is", "lu", "ua", "kz", "cl", "pe",
	"uy", "ec", "ng", "ke", "eg", "ma", "ph", "pk", "sa", "ae", "nu", "gl", "ac", "im",
)

func toSet(values ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

func inSet(set map[string]struct{}, v string) bool {
	_, ok := set[v]
	return ok
}
