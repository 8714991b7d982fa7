package sqlinline

// Schema is applied by cmd/migrate. Every statement is idempotent.
const Schema = `
create extension if not exists pgcrypto;

create table if not exists pipeline_jobs (
    id uuid primary key,
    stage text not null,
    progress int not null default 0 check (progress between 0 and 100),
    original_url text not null,
    preprocessed_url text not null default '',
    colorized_url text not null default '',
    background_url text not null default '',
    animated_url text not null default '',
    audio_url text not null default '',
    final_video_url text not null default '',
    background_type text not null default '',
    background_prompt text not null default '',
    animation_type text not null default '',
    voice_type text not null default '',
    dialogue_text text not null default '',
    pending_operation_id text not null default '',
    pending_stage text not null default '',
    pending_since timestamptz,
    version bigint not null default 1,
    created_at timestamptz not null default now(),
    updated_at timestamptz not null default now(),
    heartbeat_at timestamptz,
    constraint pipeline_jobs_pending_stage check (pending_operation_id = '' or pending_stage = stage)
);

create index if not exists pipeline_jobs_created_at_idx on pipeline_jobs (created_at desc);
create index if not exists pipeline_jobs_pending_idx on pipeline_jobs (pending_since) where pending_operation_id <> '';

create table if not exists integration_tokens (
    id uuid primary key default gen_random_uuid(),
    provider text not null unique,
    token text not null,
    properties jsonb not null default '{}'::jsonb,
    created_at timestamptz not null default now(),
    updated_at timestamptz not null default now()
);
`
