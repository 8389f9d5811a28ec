// Package synonyms provides the static-dictionary synonym source
// consulted by the Query Expander (§4.2, source 2 of 5).
//
// Grounded on original_source/rag_server/synonyms_manager.py's BASE_SYNONYMS
// table and TERM_BLACKLIST (the wiki corpus's query_log/Ollama/query-mining
// synonym sources are not carried: this package only implements the static
// base dictionary, the one source that needs no learning loop or storage).
package synonyms

import "strings"

// Static implements expansion.Synonyms over a fixed, lowercased lookup
// table seeded from the base dictionary.
type Static struct {
	table map[string][]string
}

// NewStatic builds a Static synonym source from the built-in base
// dictionary merged with any extra entries supplied by the caller
// (lowercased keys win over the base table on conflict).
func NewStatic(extra map[string][]string) *Static {
	table := make(map[string][]string, len(baseSynonyms)+len(extra))
	for k, v := range baseSynonyms {
		table[k] = v
	}
	for k, v := range extra {
		table[strings.ToLower(k)] = v
	}
	return &Static{table: table}
}

// Lookup returns synonym candidates for a single lowercased keyword.
func (s *Static) Lookup(keyword string) []string {
	return s.table[strings.ToLower(keyword)]
}

// baseSynonyms mirrors the Russian/English IT-terminology dictionary the
// wiki's query expander was trained against.
var baseSynonyms = map[string][]string{
	"стек":         {"технологии", "инструменты", "frameworks", "tech stack", "tools"},
	"технологий":   {"стек", "инструментов", "tools", "tech stack"},
	"framework":    {"фреймворк", "библиотека", "library", "фреймворки"},
	"разработка":   {"development", "dev", "coding", "программирование"},
	"баг":          {"bug", "ошибка", "error", "дефект", "issue"},
	"тест":         {"test", "testing", "проверка", "тестирование"},
	"сервер":       {"server", "backend", "бэкенд", "хост", "host"},
	"база данных":  {"бд", "database", "db", "хранилище", "storage"},
	"бд":           {"база данных", "database", "db", "хранилище"},
	"контейнер":    {"container", "докер"},
	"api":          {"интерфейс", "endpoint", "метод", "веб-сервис", "rest"},
	"endpoint":     {"api", "метод", "точка входа", "route", "эндпоинт"},
	"rest":         {"api", "restful", "веб-сервис"},
	"страница":     {"page", "документ", "doc", "страничка"},
	"пространство": {"space", "спейс", "область"},
	"документация": {"docs", "documentation", "руководство", "мануал"},
	"настройка":    {"конфигурация", "config", "configuration", "setup"},
	"установка":    {"инсталляция", "install", "installation", "setup"},
	"запуск":       {"старт", "start", "run", "launch"},
	"проблема":     {"issue", "баг", "ошибка", "problem"},
	"решение":      {"solution", "fix", "исправление"},
	"инструкция":   {"руководство", "guide", "мануал", "howto"},
	"команда":      {"team", "группа", "отдел"},
	"проект":       {"project", "система", "приложение", "сервис"},
	"версия":       {"version", "релиз", "release"},
	"обновление":   {"update", "апдейт", "upgrade"},
}
