package sqlinline

const jobFields = `stage, progress,
    original_url, preprocessed_url, colorized_url, background_url, animated_url, audio_url, final_video_url,
    background_type, background_prompt, animation_type, voice_type, dialogue_text,
    pending_operation_id, pending_stage, pending_since,
    version, created_at, updated_at, heartbeat_at`

// Column order shared by every statement returning a full job row.
const jobColumns = `id::text, ` + jobFields

const QInsertJob = `--sql a0bcc549-20fe-40dc-826a-b7883c95fab4
insert into pipeline_jobs (id, ` + jobFields + `)
values (
    $1::uuid, $2::text, $3::int,
    $4::text, $5::text, $6::text, $7::text, $8::text, $9::text, $10::text,
    $11::text, $12::text, $13::text, $14::text, $15::text,
    $16::text, $17::text, $18::timestamptz,
    1, now(), now(), null
)
returning version, created_at, updated_at;
`

const QSelectJobByID = `--sql e97b73b4-d56f-494d-bae3-fc4e8d6ba4a1
select ` + jobColumns + `
from pipeline_jobs
where id = $1::uuid;
`

const QUpdateJob = `--sql 1aff516f-0937-4cee-9033-4d532e9d580e
update pipeline_jobs set
    stage = $3::text,
    progress = $4::int,
    preprocessed_url = $5::text,
    colorized_url = $6::text,
    background_url = $7::text,
    animated_url = $8::text,
    audio_url = $9::text,
    final_video_url = $10::text,
    background_type = $11::text,
    background_prompt = $12::text,
    animation_type = $13::text,
    voice_type = $14::text,
    dialogue_text = $15::text,
    pending_operation_id = $16::text,
    pending_stage = $17::text,
    pending_since = $18::timestamptz,
    version = version + 1,
    updated_at = now()
where id = $1::uuid
  and version = $2::bigint
returning version, updated_at;
`

const QListJobs = `--sql 3b96c04b-bcab-4441-821f-f338ffaa6192
select ` + jobColumns + `
from pipeline_jobs
order by created_at desc, id desc
limit $1::int;
`

const QTouchJob = `--sql ed0d0295-e535-4dac-a09e-ec8943f01c2b
update pipeline_jobs
set heartbeat_at = $2::timestamptz
where id = $1::uuid;
`

const QClaimStaleJob = `--sql d64a54a3-64ac-45ad-945a-ae87365d8f76
with stale as (
    select id
    from pipeline_jobs
    where pending_operation_id <> ''
      and coalesce(heartbeat_at, pending_since, updated_at) < $1::timestamptz
    order by pending_since asc nulls first
    for update skip locked
    limit 1
),
claimed as (
    update pipeline_jobs
    set heartbeat_at = $2::timestamptz
    where id in (select id from stale)
    returning ` + jobColumns + `
)
select * from claimed;
`
