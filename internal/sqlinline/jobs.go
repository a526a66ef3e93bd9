package sqlinline

const QCreateJobsSchema = `--sql 48633d23-f3b5-4eb7-a492-3c63c823b110
create table if not exists photo_jobs (
    id                text primary key,
    user_id           text not null,
    status            text not null,
    file_name         text not null,
    upload_object_key text not null default '',
    temp_object_key   text not null default '',
    final_object_key  text not null default '',
    error_message     text not null default '',
    prompt            text not null default '',
    batch_job_id      text not null default '',
    created_at        timestamptz not null,
    updated_at        timestamptz not null,
    expires_at        timestamptz not null
);
create index if not exists photo_jobs_batch_job_id_idx on photo_jobs (batch_job_id) where batch_job_id <> '';
create table if not exists photo_batch_jobs (
    id              text primary key,
    user_id         text not null,
    shared_prompt   text not null default '',
    total_count     integer not null check (total_count > 0),
    completed_count integer not null default 0 check (completed_count >= 0 and completed_count <= total_count),
    status          text not null,
    job_ids         text[] not null,
    error_message   text not null default '',
    created_at      timestamptz not null,
    updated_at      timestamptz not null,
    expires_at      timestamptz not null
);
`

const QInsertJob = `--sql 09d2db48-20af-40e0-ab93-b63cf46d8a79
insert into photo_jobs (
    id, user_id, status, file_name, upload_object_key, temp_object_key, final_object_key,
    error_message, prompt, batch_job_id, created_at, updated_at, expires_at
)
values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
on conflict (id) do nothing;
`

const QSelectJobByID = `--sql 9f61e88a-a4ee-41ad-9006-6f669a5f5ef8
select id, user_id, status, file_name, upload_object_key, temp_object_key, final_object_key,
       error_message, prompt, batch_job_id, created_at, updated_at, expires_at
from photo_jobs
where id = $1;
`

const QUpdateJobStatus = `--sql 5680e6ce-4680-4810-bce8-4724cf8ccef5
update photo_jobs
set status = $2,
    temp_object_key = coalesce($3, temp_object_key),
    final_object_key = coalesce($4, final_object_key),
    error_message = coalesce($5, error_message),
    updated_at = $6
where id = $1
returning id, user_id, status, file_name, upload_object_key, temp_object_key, final_object_key,
          error_message, prompt, batch_job_id, created_at, updated_at, expires_at;
`

const QSelectJobsByBatchID = `--sql ba328afa-ae95-4745-ad93-b5e58d4c64e3
select id, user_id, status, file_name, upload_object_key, temp_object_key, final_object_key,
       error_message, prompt, batch_job_id, created_at, updated_at, expires_at
from photo_jobs
where batch_job_id = $1
order by created_at asc, id asc;
`

const QInsertBatchJob = `--sql 9e41e6fe-0192-4db0-92b1-22a9a89da395
insert into photo_batch_jobs (
    id, user_id, shared_prompt, total_count, completed_count, status, job_ids,
    error_message, created_at, updated_at, expires_at
)
values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
on conflict (id) do nothing;
`

const QSelectBatchJobByID = `--sql 3c84f8d5-58cc-4caa-bd2a-d74ea3f29154
select id, user_id, shared_prompt, total_count, completed_count, status, job_ids,
       error_message, created_at, updated_at, expires_at
from photo_batch_jobs
where id = $1;
`

const QUpdateBatchJobStatus = `--sql 5556d258-797d-4466-ba24-b6b03fc28155
update photo_batch_jobs
set status = $2,
    completed_count = coalesce($3, completed_count),
    error_message = coalesce($4, error_message),
    updated_at = $5
where id = $1
returning id, user_id, shared_prompt, total_count, completed_count, status, job_ids,
          error_message, created_at, updated_at, expires_at;
`

const QDeleteExpiredJobs = `--sql da55486f-7a4c-4eb8-a0b8-74294d1cfa9f
with expired_jobs as (
    delete from photo_jobs where expires_at < $1 returning id
),
expired_batches as (
    delete from photo_batch_jobs where expires_at < $1 returning id
)
select (select count(*) from expired_jobs), (select count(*) from expired_batches);
`
