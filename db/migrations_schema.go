package db

var migrations = []Migration{
	{
		Version: 1,
		Name:    "create_articles",
		Up: `
			CREATE TABLE articles (
				id TEXT PRIMARY KEY,
				title TEXT NOT NULL,
				slug TEXT NOT NULL UNIQUE,
				excerpt TEXT NOT NULL DEFAULT '',
				body TEXT NOT NULL DEFAULT '',
				seo_title TEXT NOT NULL DEFAULT '',
				seo_description TEXT NOT NULL DEFAULT '',
				focus_keyphrase TEXT NOT NULL DEFAULT '',
				tags TEXT[] NOT NULL DEFAULT '{}',
				published_at TIMESTAMPTZ,
				is_manually_featured BOOLEAN NOT NULL DEFAULT FALSE,
				view_count BIGINT NOT NULL DEFAULT 0,
				views_last_24h INTEGER NOT NULL DEFAULT 0,
				views_last_7d INTEGER NOT NULL DEFAULT 0,
				trending_score DOUBLE PRECISION NOT NULL DEFAULT 0,
				is_trending BOOLEAN NOT NULL DEFAULT FALSE,
				seo_score INTEGER NOT NULL DEFAULT 0,
				readability_score INTEGER NOT NULL DEFAULT 0,
				ai_readiness_score INTEGER NOT NULL DEFAULT 0,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
			CREATE INDEX idx_articles_published_at ON articles(published_at DESC) WHERE published_at IS NOT NULL;
			CREATE INDEX idx_articles_trending_score ON articles(trending_score DESC);
			CREATE INDEX idx_articles_seo_score ON articles(seo_score ASC);
		`,
		Down: `DROP TABLE IF EXISTS articles;`,
	},
	{
		Version: 2,
		Name:    "create_categories",
		Up: `
			CREATE TABLE categories (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				slug TEXT NOT NULL UNIQUE
			);
			CREATE TABLE article_categories (
				article_id TEXT NOT NULL REFERENCES articles(id) ON DELETE CASCADE,
				category_id TEXT NOT NULL REFERENCES categories(id) ON DELETE CASCADE,
				position INTEGER NOT NULL DEFAULT 0,
				PRIMARY KEY (article_id, category_id)
			);
			CREATE INDEX idx_article_categories_category ON article_categories(category_id);
		`,
		Down: `
			DROP TABLE IF EXISTS article_categories;
			DROP TABLE IF EXISTS categories;
		`,
	},
	{
		Version: 3,
		Name:    "create_page_views",
		Up: `
			CREATE TABLE page_views (
				id TEXT PRIMARY KEY,
				article_id TEXT NOT NULL REFERENCES articles(id) ON DELETE CASCADE,
				ts TIMESTAMPTZ NOT NULL,
				referrer TEXT NOT NULL DEFAULT 'direct',
				device TEXT NOT NULL DEFAULT 'desktop',
				session_hash TEXT NOT NULL
			);
			CREATE INDEX idx_page_views_dedup ON page_views(article_id, session_hash, ts DESC);
			CREATE INDEX idx_page_views_article_ts ON page_views(article_id, ts);
			CREATE INDEX idx_page_views_ts ON page_views(ts);
		`,
		Down: `DROP TABLE IF EXISTS page_views;`,
	},
	{
		Version: 4,
		Name:    "create_subscribers",
		Up: `
			CREATE TABLE subscribers (
				id TEXT PRIMARY KEY,
				email TEXT NOT NULL UNIQUE,
				status TEXT NOT NULL DEFAULT 'active',
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
		`,
		Down: `DROP TABLE IF EXISTS subscribers;`,
	},
}
