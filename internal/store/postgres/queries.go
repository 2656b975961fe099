package postgres

// Tables read by the provider:
//
//	jobs(id uuid, name text unique, display_name text, url text, buildable bool,
//	     estimated_duration_ms bigint, health int null)
//	triggers(id uuid, job_id uuid, position int, kind text, spec text,
//	         parameterized_spec text)
//	trigger_schedules(trigger_id uuid, position int, expression text,
//	                  timezone text, parameters hstore)
//	builds(job_id uuid, number int, started_at timestamptz, duration_ms bigint,
//	       estimated_duration_ms bigint, building bool, result text)

const queryListJobs = `
SELECT
    id, name, display_name, url, buildable, estimated_duration_ms, health
FROM jobs
ORDER BY name
`

const queryGetJobByName = `
SELECT
    id, name, display_name, url, buildable, estimated_duration_ms, health
FROM jobs
WHERE name = $1
`

const queryListTriggers = `
SELECT id, job_id, kind, spec, parameterized_spec
FROM triggers
ORDER BY job_id, position
`

const queryListJobTriggers = `
SELECT id, job_id, kind, spec, parameterized_spec
FROM triggers
WHERE job_id = $1
ORDER BY position
`

const queryListSchedules = `
SELECT trigger_id, expression, timezone, parameters
FROM trigger_schedules
ORDER BY trigger_id, position
`

const queryListJobSchedules = `
SELECT s.trigger_id, s.expression, s.timezone, s.parameters
FROM trigger_schedules s
JOIN triggers t ON s.trigger_id = t.id
WHERE t.job_id = $1
ORDER BY s.trigger_id, s.position
`

const queryListBuilds = `
SELECT job_id, number, started_at, duration_ms, estimated_duration_ms, building, result
FROM builds
ORDER BY job_id, number
`

const queryListJobBuilds = `
SELECT job_id, number, started_at, duration_ms, estimated_duration_ms, building, result
FROM builds
WHERE job_id = $1
ORDER BY number
`
