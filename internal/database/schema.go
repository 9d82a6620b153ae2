package database

// SchemaVersion is the current schema version.
const SchemaVersion = 1

// CoreSchema contains the table definitions for the topic/stance core:
// ideas, the three-level topic tree, similarity/relation edges, and the
// relation-classification cache.
const CoreSchema = `
PRAGMA foreign_keys = ON;

CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY,
	applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- =============================================================================
-- TOPICS TABLE
-- Three-level tree: level 1 is broadest, level 3 is a leaf cluster.
-- parent_topic_id is NULL iff level = 1.
-- =============================================================================
CREATE TABLE IF NOT EXISTS topics (
	id TEXT PRIMARY KEY,
	level INTEGER NOT NULL CHECK (level IN (1, 2, 3)),
	name TEXT NOT NULL CHECK (length(name) <= 200),
	centroid_embedding BLOB NOT NULL,
	n_points INTEGER NOT NULL DEFAULT 1 CHECK (n_points >= 0),
	parent_topic_id TEXT REFERENCES topics(id) ON DELETE SET NULL,
	stance_centroids TEXT NOT NULL DEFAULT '{}',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_topics_level_parent ON topics(level, parent_topic_id);
CREATE INDEX IF NOT EXISTS idx_topics_parent ON topics(parent_topic_id);
-- Case-insensitive exact-name match within (level, parent) per upsert_topic_level step 1.
CREATE INDEX IF NOT EXISTS idx_topics_scope_name ON topics(level, parent_topic_id, name COLLATE NOCASE);

-- =============================================================================
-- IDEAS TABLE
-- topic_id anchors level-1, mid_topic_id level-2, and subtopic_id
-- level-3 (the leaf); the level-2 id is also copied into
-- metadata.mid_topic_id.
-- dedupe_key is the precomputed, normalized duplicate-detection key
-- (lower + collapsed whitespace + stripped trailing terminators); a
-- SQLite build cannot express the key's normalization as a pure SQL
-- expression index, so the application computes it once at ingest time
-- and this column carries the UNIQUE constraint instead.
-- =============================================================================
CREATE TABLE IF NOT EXISTS ideas (
	id TEXT PRIMARY KEY,
	text TEXT NOT NULL CHECK (length(text) BETWEEN 5 AND 320),
	dedupe_key TEXT NOT NULL,
	embedding BLOB NOT NULL,
	topic_id TEXT REFERENCES topics(id) ON DELETE SET NULL,
	mid_topic_id TEXT REFERENCES topics(id) ON DELETE SET NULL,
	subtopic_id TEXT REFERENCES topics(id) ON DELETE SET NULL,
	stance_label TEXT NOT NULL CHECK (stance_label IN ('pro', 'neutral', 'con')),
	stance_confidence REAL NOT NULL DEFAULT 0,
	metadata TEXT NOT NULL DEFAULT '{}',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_ideas_dedupe_key ON ideas(dedupe_key);
CREATE INDEX IF NOT EXISTS idx_ideas_topic_id ON ideas(topic_id);
CREATE INDEX IF NOT EXISTS idx_ideas_mid_topic_id ON ideas(mid_topic_id);
CREATE INDEX IF NOT EXISTS idx_ideas_subtopic_id ON ideas(subtopic_id);
CREATE INDEX IF NOT EXISTS idx_ideas_stance_label ON ideas(stance_label);
CREATE INDEX IF NOT EXISTS idx_ideas_created_at ON ideas(created_at);

-- =============================================================================
-- EDGES TABLE
-- Denormalized graph view: idea_similarity, support, oppose (mirrored
-- from idea_relations' confident pairs), topic_hierarchy (parent->child).
-- =============================================================================
CREATE TABLE IF NOT EXISTS edges (
	src TEXT NOT NULL,
	dst TEXT NOT NULL,
	edge_type TEXT NOT NULL CHECK (edge_type IN ('idea_similarity', 'support', 'oppose', 'topic_hierarchy')),
	weight REAL NOT NULL CHECK (weight >= 0 AND weight <= 1),
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (src, dst)
);

CREATE INDEX IF NOT EXISTS idx_edges_dst ON edges(dst);
CREATE INDEX IF NOT EXISTS idx_edges_type ON edges(edge_type);

-- =============================================================================
-- IDEA_RELATIONS TABLE
-- Directed cache of the LLM pair judgment; each direction independent.
-- =============================================================================
CREATE TABLE IF NOT EXISTS idea_relations (
	src_id TEXT NOT NULL,
	dst_id TEXT NOT NULL,
	relation_label TEXT NOT NULL CHECK (relation_label IN ('support', 'oppose', 'neutral')),
	confidence REAL NOT NULL CHECK (confidence >= 0 AND confidence <= 1),
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (src_id, dst_id)
);
`
