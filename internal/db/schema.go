package db

// SchemaSQL contains the world database schema.
// Vector search uses brute-force vector::similarity::cosine expressions
// rather than HNSW indexes; at narrative scale (hundreds of entities) the
// scan is fast and avoids index/dimension coupling.
const SchemaSQL = `
    -- ==========================================================================
    -- CHARACTER
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS character SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS name ON character TYPE string;
    DEFINE FIELD IF NOT EXISTS aliases ON character TYPE array<string> DEFAULT [];
    DEFINE FIELD IF NOT EXISTS roles ON character TYPE array<string> DEFAULT [];
    DEFINE FIELD IF NOT EXISTS profile ON character FLEXIBLE TYPE object DEFAULT {};
    DEFINE FIELD IF NOT EXISTS embedding ON character TYPE option<array<float>>;
    DEFINE FIELD IF NOT EXISTS composite_text ON character TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS embedding_stale ON character TYPE bool DEFAULT true;
    DEFINE FIELD IF NOT EXISTS identity_embedding ON character TYPE option<array<float>>;
    DEFINE FIELD IF NOT EXISTS identity_composite ON character TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS identity_stale ON character TYPE bool DEFAULT true;
    DEFINE FIELD IF NOT EXISTS psychology_embedding ON character TYPE option<array<float>>;
    DEFINE FIELD IF NOT EXISTS psychology_composite ON character TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS psychology_stale ON character TYPE bool DEFAULT true;
    DEFINE FIELD IF NOT EXISTS social_embedding ON character TYPE option<array<float>>;
    DEFINE FIELD IF NOT EXISTS social_composite ON character TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS social_stale ON character TYPE bool DEFAULT true;
    DEFINE FIELD IF NOT EXISTS narrative_embedding ON character TYPE option<array<float>>;
    DEFINE FIELD IF NOT EXISTS narrative_composite ON character TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS narrative_stale ON character TYPE bool DEFAULT true;
    DEFINE FIELD IF NOT EXISTS created_at ON character TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS updated_at ON character TYPE datetime DEFAULT time::now();

    DEFINE ANALYZER IF NOT EXISTS narra_analyzer TOKENIZERS class FILTERS lowercase, ascii, snowball(english);
    DEFINE INDEX IF NOT EXISTS character_name_ft ON character FIELDS name FULLTEXT ANALYZER narra_analyzer BM25;
    DEFINE INDEX IF NOT EXISTS character_composite_ft ON character FIELDS composite_text FULLTEXT ANALYZER narra_analyzer BM25;

    -- ==========================================================================
    -- LOCATION
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS location SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS name ON location TYPE string;
    DEFINE FIELD IF NOT EXISTS description ON location TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS loc_type ON location TYPE string DEFAULT 'place';
    DEFINE FIELD IF NOT EXISTS embedding ON location TYPE option<array<float>>;
    DEFINE FIELD IF NOT EXISTS composite_text ON location TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS embedding_stale ON location TYPE bool DEFAULT true;
    DEFINE FIELD IF NOT EXISTS created_at ON location TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS updated_at ON location TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS location_name_ft ON location FIELDS name FULLTEXT ANALYZER narra_analyzer BM25;
    DEFINE INDEX IF NOT EXISTS location_composite_ft ON location FIELDS composite_text FULLTEXT ANALYZER narra_analyzer BM25;

    -- ==========================================================================
    -- EVENT
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS event SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS title ON event TYPE string;
    DEFINE FIELD IF NOT EXISTS description ON event TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS sequence ON event TYPE int;
    DEFINE FIELD IF NOT EXISTS date ON event TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS date_precision ON event TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS embedding ON event TYPE option<array<float>>;
    DEFINE FIELD IF NOT EXISTS composite_text ON event TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS embedding_stale ON event TYPE bool DEFAULT true;
    DEFINE FIELD IF NOT EXISTS created_at ON event TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS updated_at ON event TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS event_sequence ON event FIELDS sequence;
    DEFINE INDEX IF NOT EXISTS event_title_ft ON event FIELDS title FULLTEXT ANALYZER narra_analyzer BM25;
    DEFINE INDEX IF NOT EXISTS event_composite_ft ON event FIELDS composite_text FULLTEXT ANALYZER narra_analyzer BM25;

    -- ==========================================================================
    -- SCENE
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS scene SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS title ON scene TYPE string;
    DEFINE FIELD IF NOT EXISTS summary ON scene TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS event ON scene TYPE record<event>;
    DEFINE FIELD IF NOT EXISTS location ON scene TYPE record<location>;
    DEFINE FIELD IF NOT EXISTS secondary_locations ON scene TYPE array<record<location>> DEFAULT [];
    DEFINE FIELD IF NOT EXISTS embedding ON scene TYPE option<array<float>>;
    DEFINE FIELD IF NOT EXISTS composite_text ON scene TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS embedding_stale ON scene TYPE bool DEFAULT true;
    DEFINE FIELD IF NOT EXISTS created_at ON scene TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS updated_at ON scene TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS scene_title_ft ON scene FIELDS title FULLTEXT ANALYZER narra_analyzer BM25;
    DEFINE INDEX IF NOT EXISTS scene_composite_ft ON scene FIELDS composite_text FULLTEXT ANALYZER narra_analyzer BM25;

    -- ==========================================================================
    -- KNOWLEDGE (fact records owned by a character)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS knowledge SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS fact ON knowledge TYPE string;
    DEFINE FIELD IF NOT EXISTS character ON knowledge TYPE record<character>;
    DEFINE FIELD IF NOT EXISTS source_event ON knowledge TYPE option<record<event>>;
    DEFINE FIELD IF NOT EXISTS source_character ON knowledge TYPE option<record<character>>;
    DEFINE FIELD IF NOT EXISTS embedding ON knowledge TYPE option<array<float>>;
    DEFINE FIELD IF NOT EXISTS created_at ON knowledge TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS knowledge_fact_ft ON knowledge FIELDS fact FULLTEXT ANALYZER narra_analyzer BM25;

    -- ==========================================================================
    -- UNIVERSE FACT
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS fact SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS title ON fact TYPE string;
    DEFINE FIELD IF NOT EXISTS description ON fact TYPE string;
    DEFINE FIELD IF NOT EXISTS categories ON fact TYPE array<string> DEFAULT [];
    DEFINE FIELD IF NOT EXISTS enforcement_level ON fact TYPE string DEFAULT 'informational'
        ASSERT $value IN ['informational', 'warning', 'strict'];
    DEFINE FIELD IF NOT EXISTS scope ON fact TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS created_at ON fact TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS updated_at ON fact TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS fact_title_ft ON fact FIELDS title FULLTEXT ANALYZER narra_analyzer BM25;
    DEFINE INDEX IF NOT EXISTS fact_description_ft ON fact FIELDS description FULLTEXT ANALYZER narra_analyzer BM25;

    -- ==========================================================================
    -- NOTE
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS note SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS title ON note TYPE string;
    DEFINE FIELD IF NOT EXISTS body ON note TYPE string;
    DEFINE FIELD IF NOT EXISTS created_at ON note TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS updated_at ON note TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS note_title_ft ON note FIELDS title FULLTEXT ANALYZER narra_analyzer BM25;
    DEFINE INDEX IF NOT EXISTS note_body_ft ON note FIELDS body FULLTEXT ANALYZER narra_analyzer BM25;

    -- ==========================================================================
    -- EDGES
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS relates_to TYPE RELATION IN character OUT character SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS rel_type ON relates_to TYPE string;
    DEFINE FIELD IF NOT EXISTS subtype ON relates_to TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS label ON relates_to TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS embedding ON relates_to TYPE option<array<float>>;
    DEFINE FIELD IF NOT EXISTS composite_text ON relates_to TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS embedding_stale ON relates_to TYPE bool DEFAULT true;
    DEFINE FIELD IF NOT EXISTS created_at ON relates_to TYPE datetime DEFAULT time::now();

    DEFINE TABLE IF NOT EXISTS perceives TYPE RELATION IN character OUT character SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS perception ON perceives TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS feelings ON perceives TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS tension_level ON perceives TYPE option<int>
        ASSERT $value = NONE OR ($value >= 0 AND $value <= 10);
    DEFINE FIELD IF NOT EXISTS history_notes ON perceives TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS rel_types ON perceives TYPE array<string> DEFAULT [];
    DEFINE FIELD IF NOT EXISTS embedding ON perceives TYPE option<array<float>>;
    DEFINE FIELD IF NOT EXISTS composite_text ON perceives TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS embedding_stale ON perceives TYPE bool DEFAULT true;
    DEFINE FIELD IF NOT EXISTS created_at ON perceives TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS updated_at ON perceives TYPE datetime DEFAULT time::now();
    -- One current perceives edge per (observer, target)
    DEFINE FIELD IF NOT EXISTS pair_key ON perceives VALUE <string>string::concat(<string>in, '|', <string>out);
    DEFINE INDEX IF NOT EXISTS unique_perceives ON perceives FIELDS pair_key UNIQUE;

    DEFINE TABLE IF NOT EXISTS knows TYPE RELATION SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS certainty ON knows TYPE string DEFAULT 'knows';
    DEFINE FIELD IF NOT EXISTS learning_method ON knows TYPE string DEFAULT 'told';
    DEFINE FIELD IF NOT EXISTS source_character ON knows TYPE option<record<character>>;
    DEFINE FIELD IF NOT EXISTS source_event ON knows TYPE option<record<event>>;
    DEFINE FIELD IF NOT EXISTS premises ON knows TYPE array<string> DEFAULT [];
    DEFINE FIELD IF NOT EXISTS truth_value ON knows TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS learned_at ON knows TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS superseded ON knows TYPE bool DEFAULT false;

    DEFINE TABLE IF NOT EXISTS participates_in TYPE RELATION IN character OUT scene SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS role ON participates_in TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS notes ON participates_in TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS created_at ON participates_in TYPE datetime DEFAULT time::now();

    DEFINE TABLE IF NOT EXISTS involved_in TYPE RELATION IN character OUT event SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS role ON involved_in TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS impact ON involved_in TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS created_at ON involved_in TYPE datetime DEFAULT time::now();

    DEFINE TABLE IF NOT EXISTS applies_to TYPE RELATION SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS created_at ON applies_to TYPE datetime DEFAULT time::now();

    DEFINE TABLE IF NOT EXISTS note_of TYPE RELATION SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS created_at ON note_of TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS pair_key ON note_of VALUE <string>string::concat(<string>in, '|', <string>out);
    DEFINE INDEX IF NOT EXISTS unique_note_of ON note_of FIELDS pair_key UNIQUE;

    -- ==========================================================================
    -- ARC SNAPSHOTS (append-only)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS arc_snapshot SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS entity_id ON arc_snapshot TYPE string;
    DEFINE FIELD IF NOT EXISTS entity_type ON arc_snapshot TYPE string;
    DEFINE FIELD IF NOT EXISTS embedding ON arc_snapshot TYPE array<float>;
    DEFINE FIELD IF NOT EXISTS delta_magnitude ON arc_snapshot TYPE option<float>;
    DEFINE FIELD IF NOT EXISTS event_id ON arc_snapshot TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS created_at ON arc_snapshot TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS arc_snapshot_entity ON arc_snapshot FIELDS entity_id;

    -- ==========================================================================
    -- SAVED PHASES
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS phase SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS cluster_id ON phase TYPE int;
    DEFINE FIELD IF NOT EXISTS label ON phase TYPE string;
    DEFINE FIELD IF NOT EXISTS members ON phase TYPE array<string> DEFAULT [];
    DEFINE FIELD IF NOT EXISTS entity_type_counts ON phase FLEXIBLE TYPE object DEFAULT {};
    DEFINE FIELD IF NOT EXISTS sequence_range ON phase TYPE option<array<int>>;
    DEFINE FIELD IF NOT EXISTS created_at ON phase TYPE datetime DEFAULT time::now();

    -- ==========================================================================
    -- WORLD META (embedding model / dimension tracking)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS world_meta SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS embedding_model ON world_meta TYPE string;
    DEFINE FIELD IF NOT EXISTS embedding_provider ON world_meta TYPE string;
    DEFINE FIELD IF NOT EXISTS embedding_dimension ON world_meta TYPE int;
    DEFINE FIELD IF NOT EXISTS schema_version ON world_meta TYPE int DEFAULT 1;
    DEFINE FIELD IF NOT EXISTS updated_at ON world_meta TYPE datetime DEFAULT time::now();
`
