package redis

import "github.com/redis/go-redis/v9"

// createUserScript registra usuario + índice por username solo si ninguno existe.
// KEYS: user, user_by_name. ARGV: json, id. Retorna 1 ok, 0 conflicto.
var createUserScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 or redis.call('EXISTS', KEYS[2]) == 1 then
	return 0
end
redis.call('SET', KEYS[1], ARGV[1])
redis.call('SET', KEYS[2], ARGV[2])
return 1
`)

// ensureAuthzScript devuelve la autorización existente o la crea.
// KEYS: authz, authz_openid. ARGV: json. Retorna el JSON vigente, 0 si el openid está tomado.
var ensureAuthzScript = redis.NewScript(`
local data = redis.call('GET', KEYS[1])
if data then
	return data
end
if redis.call('EXISTS', KEYS[2]) == 1 then
	return 0
end
redis.call('SET', KEYS[1], ARGV[1])
redis.call('SET', KEYS[2], KEYS[1])
return ARGV[1]
`)

// consentScript marca consentimiento. KEYS: authz. ARGV: scope, at, covered...
// Un consentimiento vigente incluido en covered no se toca.
var consentScript = redis.NewScript(`
local data = redis.call('GET', KEYS[1])
if not data then
	return 0
end
local a = cjson.decode(data)
if a.consented == true then
	for i = 3, #ARGV do
		if a.scope == ARGV[i] then
			return 1
		end
	end
end
a.consented = true
a.scope = ARGV[1]
a.consented_at = ARGV[2]
a.updated_at = ARGV[2]
redis.call('SET', KEYS[1], cjson.encode(a))
return 1
`)

// saveCodeScript reemplaza el code vigente del par client+subject.
// KEYS: code, code_pair. ARGV: json, hash, ttl_ms, code key prefix.
// Retorna 1 ok, 0 si el hash ya existe.
var saveCodeScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
local prev = redis.call('GET', KEYS[2])
if prev then
	redis.call('DEL', ARGV[4] .. prev)
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[3])
return 1
`)

// consumeCodeScript marca el code como consumido una única vez.
// KEYS: code. ARGV: consumed_at. Retorna el JSON actualizado, 0 si no existe, -1 si ya fue consumido.
var consumeCodeScript = redis.NewScript(`
local data = redis.call('GET', KEYS[1])
if not data then
	return 0
end
local c = cjson.decode(data)
if c.consumed_at and c.consumed_at ~= cjson.null then
	return -1
end
c.consumed_at = ARGV[1]
local out = cjson.encode(c)
local ttl = redis.call('PTTL', KEYS[1])
if ttl > 0 then
	redis.call('SET', KEYS[1], out, 'PX', ttl)
else
	redis.call('SET', KEYS[1], out)
end
return out
`)

// saveTokenScript guarda el registro vivo del par y borra el anterior con sus índices.
// KEYS: token, token_access, token_refresh, token_pair.
// ARGV: json, id, ttl_ms, has_refresh ("1"/"0"), prefix.
// Retorna 1 ok, 0 si el access hash ya existe.
var saveTokenScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[2]) == 1 then
	return 0
end
local prev = redis.call('GET', KEYS[4])
if prev then
	local pkey = ARGV[5] .. ':token:' .. prev
	local pdata = redis.call('GET', pkey)
	if pdata then
		local p = cjson.decode(pdata)
		redis.call('DEL', ARGV[5] .. ':token_access:' .. p.access_hash)
		if p.refresh_hash ~= '' then
			redis.call('DEL', ARGV[5] .. ':token_refresh:' .. p.refresh_hash)
		end
		redis.call('DEL', pkey)
	end
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[3])
if ARGV[4] == '1' then
	redis.call('SET', KEYS[3], ARGV[2], 'PX', ARGV[3])
end
redis.call('SET', KEYS[4], ARGV[2], 'PX', ARGV[3])
return 1
`)

// rotateTokenScript hace compare-and-swap sobre el refresh hash.
// KEYS: token_refresh (viejo).
// ARGV: prefix, old_refresh, client_id, new_access, new_refresh, issued_at,
//
//	access_exp, refresh_exp, keep_previous ("1"/"0"), new_id, ttl_ms.
//
// Retorna el JSON del registro nuevo o false si el refresh ya no es válido.
var rotateTokenScript = redis.NewScript(`
local id = redis.call('GET', KEYS[1])
if not id then
	return false
end
local tkey = ARGV[1] .. ':token:' .. id
local data = redis.call('GET', tkey)
if not data then
	return false
end
local t = cjson.decode(data)
if t.refresh_hash ~= ARGV[2] or t.client_id ~= ARGV[3] then
	return false
end
redis.call('DEL', KEYS[1])

if ARGV[9] == '1' then
	t.refresh_hash = ''
	local ttl = redis.call('PTTL', tkey)
	if ttl > 0 then
		redis.call('SET', tkey, cjson.encode(t), 'PX', ttl)
	else
		redis.call('SET', tkey, cjson.encode(t))
	end
	id = ARGV[10]
	tkey = ARGV[1] .. ':token:' .. id
	t.id = id
else
	redis.call('DEL', ARGV[1] .. ':token_access:' .. t.access_hash)
end

t.access_hash = ARGV[4]
t.refresh_hash = ARGV[5]
t.issued_at = ARGV[6]
t.access_expires_at = ARGV[7]
t.refresh_expires_at = ARGV[8]
local out = cjson.encode(t)
redis.call('SET', tkey, out, 'PX', ARGV[11])
redis.call('SET', ARGV[1] .. ':token_access:' .. t.access_hash, id, 'PX', ARGV[11])
redis.call('SET', ARGV[1] .. ':token_refresh:' .. t.refresh_hash, id, 'PX', ARGV[11])
redis.call('SET', ARGV[1] .. ':token_pair:' .. t.client_id .. ':' .. t.subject_id, id, 'PX', ARGV[11])
return out
`)
