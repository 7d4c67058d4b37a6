package audit

import "strings"

// Locale selects the language of rendered descriptions
type Locale string

const (
	LocaleEnglish Locale = "en"
	LocaleSpanish Locale = "es"
)

// catalog holds every phrase the renderer emits for one locale. Templates take
// their arguments with %s / %d in the order noted.
type catalog struct {
	entities map[string]string
	record   string // noun used when a record carries no entity type

	loginNamed   string // user
	loginAnon    string
	logout       string
	loginFailed  string // email
	unknownEmail string
	accessDenied string

	created string // entity
	updated string // entity
	deleted string // entity
	edited  string // entity
	viewed  string // entity

	pathSuffix    string // path
	reasonSuffix  string // reason
	changesSuffix string // changes summary
	filtersSuffix string // compact filters

	systemStart string
	systemStop  string
	systemError string
	fallback    string // action

	noChanges string
	noDetails string
	andMore   string // count

	userID    string // id
	withIP    string // ip
	anonymous string // ip
	system    string
}

var catalogs = map[Locale]*catalog{
	LocaleEnglish: {
		entities: map[string]string{
			"program":          "program",
			"programs":         "program",
			"menu_item":        "menu item",
			"menu_items":       "menu item",
			"user":             "user",
			"users":            "user",
			"podcast":          "podcast",
			"podcasts":         "podcast",
			"news":             "news article",
			"news_item":        "news article",
			"contact":          "contact",
			"contacts":         "contact",
			"profile":          "profile",
			"password":         "password",
			"comment":          "comment",
			"comments":         "comment",
			"category":         "category",
			"categories":       "category",
			"news_category":    "news category",
			"podcast_category": "podcast category",
			"activity_log":     "activity log",
			"activity_logs":    "activity log",
			"session":          "session",
		},
		record: "record",

		loginNamed:   "%s logged in",
		loginAnon:    "A user logged in",
		logout:       "User logged out",
		loginFailed:  "Failed login attempt for %s",
		unknownEmail: "unknown",
		accessDenied: "Access denied",

		created: "Created %s",
		updated: "Updated %s",
		deleted: "Deleted %s",
		edited:  "Edited %s",
		viewed:  "Viewed %s",

		pathSuffix:    " (path: %s)",
		reasonSuffix:  " - reason: %s",
		changesSuffix: " - changes: %s",
		filtersSuffix: " with filters %s",

		systemStart: "System started",
		systemStop:  "System stopped",
		systemError: "System error",
		fallback:    "Performed action '%s'",

		noChanges: "no changes",
		noDetails: "no details",
		andMore:   "and %d more",

		userID:    "User ID: %d",
		withIP:    " (IP: %s)",
		anonymous: "Anonymous user (IP: %s)",
		system:    "System",
	},
	LocaleSpanish: {
		entities: map[string]string{
			"program":          "programa",
			"programs":         "programa",
			"menu_item":        "elemento del menú",
			"menu_items":       "elemento del menú",
			"user":             "usuario",
			"users":            "usuario",
			"podcast":          "podcast",
			"podcasts":         "podcast",
			"news":             "noticia",
			"news_item":        "noticia",
			"contact":          "contacto",
			"contacts":         "contacto",
			"profile":          "perfil",
			"password":         "contraseña",
			"comment":          "comentario",
			"comments":         "comentario",
			"category":         "categoría",
			"categories":       "categoría",
			"news_category":    "categoría de noticias",
			"podcast_category": "categoría de podcasts",
			"activity_log":     "registro de actividad",
			"activity_logs":    "registro de actividad",
			"session":          "sesión",
		},
		record: "registro",

		loginNamed:   "%s inició sesión",
		loginAnon:    "Un usuario inició sesión",
		logout:       "El usuario cerró sesión",
		loginFailed:  "Intento de inicio de sesión fallido para %s",
		unknownEmail: "desconocido",
		accessDenied: "Acceso denegado",

		created: "Creó %s",
		updated: "Actualizó %s",
		deleted: "Eliminó %s",
		edited:  "Editó %s",
		viewed:  "Consultó %s",

		pathSuffix:    " (ruta: %s)",
		reasonSuffix:  " - motivo: %s",
		changesSuffix: " - cambios: %s",
		filtersSuffix: " con filtros %s",

		systemStart: "Sistema iniciado",
		systemStop:  "Sistema detenido",
		systemError: "Error del sistema",
		fallback:    "Realizó la acción '%s'",

		noChanges: "sin cambios",
		noDetails: "sin detalles",
		andMore:   "y %d más",

		userID:    "ID de usuario: %d",
		withIP:    " (IP: %s)",
		anonymous: "Usuario anónimo (IP: %s)",
		system:    "Sistema",
	},
}

// ParseLocale maps a config value to a Locale, defaulting to English
func ParseLocale(s string) Locale {
	l := Locale(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := catalogs[l]; ok {
		return l
	}
	return LocaleEnglish
}

// LocalizeEntity returns the localized noun for an entity type, or the raw value when unmapped
func (l Locale) LocalizeEntity(entityType string) string {
	c := catalogFor(l)
	if noun, ok := c.entities[strings.ToLower(entityType)]; ok {
		return noun
	}
	return entityType
}

func catalogFor(l Locale) *catalog {
	if c, ok := catalogs[l]; ok {
		return c
	}
	return catalogs[LocaleEnglish]
}
